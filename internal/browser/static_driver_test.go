package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const staticTestHome = `<!DOCTYPE html>
<html><head><title> Home | TDT </title><style>.x{}</style></head>
<body>
  <header><nav><a href="/about">About</a><a href="#main">Skip</a></nav></header>
  <main id="main">
    <h1>Welcome to TDT</h1>
    <p hidden>secret hidden text</p>
    <div style="display: none">collapsed text</div>
    <button aria-expanded="false" class="Hamburger-Menu">Menu</button>
    <input type="search" name="q" value="">
    <input type="hidden" name="token" value="abc">
    <textarea name="msg">hello</textarea>
    <script>var notText = 1;</script>
  </main>
</body></html>`

const staticTestAbout = `<!DOCTYPE html>
<html><head><title>About</title></head>
<body><main><h1>About us</h1><a href="/"><span>Home</span></a></main></body></html>`

func newStaticTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, staticTestHome)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, staticTestAbout)
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/about", http.StatusMovedPermanently)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func openStaticPage(t *testing.T) (*httptest.Server, *staticPage) {
	t.Helper()
	server := newStaticTestSite(t)
	driver := NewStaticDriver(nil, "", arbor.NewLogger())
	page, err := driver.NewPage(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })
	return server, page.(*staticPage)
}

func TestStaticPage_NavigateReportsStatusAndFinalURL(t *testing.T) {
	server, page := openStaticPage(t)
	ctx := context.Background()

	result, err := page.Navigate(ctx, server.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, server.URL+"/about", result.URL)

	result, err = page.Navigate(ctx, server.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
}

func TestStaticPage_NavigateTransportError(t *testing.T) {
	server, page := openStaticPage(t)
	url := server.URL
	server.Close()

	_, err := page.Navigate(context.Background(), url+"/")
	assert.Error(t, err)
}

func TestStaticPage_BodyTextSkipsHiddenAndScripts(t *testing.T) {
	server, page := openStaticPage(t)
	ctx := context.Background()

	_, err := page.Navigate(ctx, server.URL+"/")
	require.NoError(t, err)

	text, err := page.BodyText(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Welcome to TDT")
	assert.NotContains(t, text, "secret hidden text")
	assert.NotContains(t, text, "collapsed text")
	assert.NotContains(t, text, "notText")

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Home | TDT", title)
}

func TestStaticPage_QueryVisibility(t *testing.T) {
	server, page := openStaticPage(t)
	ctx := context.Background()

	_, err := page.Navigate(ctx, server.URL+"/")
	require.NoError(t, err)

	inputs, err := page.Query(ctx, "input")
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.True(t, inputs[0].Visible)
	assert.False(t, inputs[1].Visible, "hidden inputs are not visible")

	hidden, err := page.Query(ctx, "p")
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	assert.False(t, hidden[0].Visible)

	buttons, err := page.Query(ctx, "button")
	require.NoError(t, err)
	require.Len(t, buttons, 1)
	assert.Equal(t, "button", buttons[0].Tag)
	assert.Equal(t, "Menu", buttons[0].Text)
	class, ok := buttons[0].Attr("class")
	assert.True(t, ok)
	assert.Equal(t, "Hamburger-Menu", class)
}

func TestStaticPage_ClickTogglesAriaExpanded(t *testing.T) {
	server, page := openStaticPage(t)
	ctx := context.Background()

	_, err := page.Navigate(ctx, server.URL+"/")
	require.NoError(t, err)

	require.NoError(t, page.Click(ctx, "button", 0))
	buttons, err := page.Query(ctx, "button")
	require.NoError(t, err)
	expanded, _ := buttons[0].Attr("aria-expanded")
	assert.Equal(t, "true", expanded)
}

func TestStaticPage_ClickFollowsLinksAndHistory(t *testing.T) {
	server, page := openStaticPage(t)
	ctx := context.Background()

	_, err := page.Navigate(ctx, server.URL+"/")
	require.NoError(t, err)

	// Fragment link stays on the document
	require.NoError(t, page.Click(ctx, "nav a", 1))
	current, _ := page.URL(ctx)
	assert.Equal(t, server.URL+"/#main", current)

	require.NoError(t, page.Click(ctx, "nav a", 0))
	current, _ = page.URL(ctx)
	assert.Equal(t, server.URL+"/about", current)

	require.NoError(t, page.Back(ctx))
	current, _ = page.URL(ctx)
	assert.Equal(t, server.URL+"/", current)

	require.NoError(t, page.Forward(ctx))
	current, _ = page.URL(ctx)
	assert.Equal(t, server.URL+"/about", current)

	// Click on a child of a link follows the link
	require.NoError(t, page.Click(ctx, "main a span", 0))
	current, _ = page.URL(ctx)
	assert.Equal(t, server.URL+"/", current)
}

func TestStaticPage_FillAndReadBack(t *testing.T) {
	server, page := openStaticPage(t)
	ctx := context.Background()

	_, err := page.Navigate(ctx, server.URL+"/")
	require.NoError(t, err)

	require.NoError(t, page.Fill(ctx, `input[type="search"]`, 0, "investment"))
	value, err := page.InputValue(ctx, `input[type="search"]`, 0)
	require.NoError(t, err)
	assert.Equal(t, "investment", value)

	value, err = page.InputValue(ctx, "textarea", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(value))

	assert.Error(t, page.Fill(ctx, "select", 0, "x"))
}

func TestStaticPage_ScreenshotUnsupported(t *testing.T) {
	_, page := openStaticPage(t)
	_, err := page.Screenshot(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeSnapshots(t *testing.T) {
	raw := `[{"index":0,"tag":"nav","text":"Home About","visible":true,"attributes":{"role":"navigation"}},
	         {"index":1,"tag":"nav","text":"","visible":false,"attributes":null}]`

	elements, err := decodeSnapshots("nav", raw)
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, "nav", elements[0].Selector)
	assert.True(t, elements[0].Visible)
	assert.NotNil(t, elements[1].Attributes)

	_, err = decodeSnapshots("nav", "not json")
	assert.Error(t, err)
}

func TestJSPathQuotesSelector(t *testing.T) {
	assert.Equal(t, `document.querySelectorAll("a[href=\"/x\"]")[2]`, jsPath(`a[href="/x"]`, 2))
}
