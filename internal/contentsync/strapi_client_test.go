package contentsync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/interfaces"
	"github.com/ternarybob/siteverify/internal/testsite"
)

var _ interfaces.ContentStore = (*StrapiClient)(nil)

func newTestClient(baseURL, token string) *StrapiClient {
	return NewStrapiClient(baseURL, token, arbor.NewLogger(), WithRateLimit(0))
}

func TestStrapiClient_GetField(t *testing.T) {
	t.Run("attributes shape", func(t *testing.T) {
		site := testsite.New(t, testsite.Options{})
		value, err := newTestClient(site.URL, testsite.Token).GetField(context.Background(), "1", "title")
		require.NoError(t, err)
		assert.Equal(t, testsite.OriginalHeading, value)
	})

	t.Run("flat shape", func(t *testing.T) {
		site := testsite.New(t, testsite.Options{FlatResponse: true})
		value, err := newTestClient(site.URL, testsite.Token).GetField(context.Background(), "1", "title")
		require.NoError(t, err)
		assert.Equal(t, testsite.OriginalHeading, value)
	})

	t.Run("missing field", func(t *testing.T) {
		site := testsite.New(t, testsite.Options{})
		_, err := newTestClient(site.URL, testsite.Token).GetField(context.Background(), "1", "subtitle")
		assert.ErrorContains(t, err, `no field "subtitle"`)
	})

	t.Run("unknown entry", func(t *testing.T) {
		site := testsite.New(t, testsite.Options{})
		_, err := newTestClient(site.URL, testsite.Token).GetField(context.Background(), "99", "title")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})
}

func TestStrapiClient_SetFieldSendsBearerToken(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	client := newTestClient(site.URL, testsite.Token)

	require.NoError(t, client.SetField(context.Background(), "1", "title", "Automated Test Title 1"))
	assert.Equal(t, "Automated Test Title 1", site.Heading())
	assert.Equal(t, []string{"Automated Test Title 1"}, site.Writes())
}

func TestStrapiClient_Unauthorized(t *testing.T) {
	site := testsite.New(t, testsite.Options{})
	client := newTestClient(site.URL, "wrong-token")

	err := client.SetField(context.Background(), "1", "title", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMutationRejected))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Empty(t, site.Writes())
}

func TestStrapiClient_RejectedWrite(t *testing.T) {
	site := testsite.New(t, testsite.Options{RejectWritesAfter: 1})
	client := newTestClient(site.URL, testsite.Token)

	require.NoError(t, client.SetField(context.Background(), "1", "title", "first"))
	err := client.SetField(context.Background(), "1", "title", "second")
	assert.ErrorIs(t, err, ErrMutationRejected)
	assert.Equal(t, "first", site.Heading())
}

func TestStrapiClient_CollectionOption(t *testing.T) {
	client := NewStrapiClient("https://cms.example.org/", "t", arbor.NewLogger(), WithCollection("/pages/"))
	assert.Equal(t, "https://cms.example.org/api/pages/7", client.entryURL("7"))
}
