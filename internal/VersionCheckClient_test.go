package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testVersionClient points a VersionCheckClient at a local test server.
// The client builds its URL from the host suffix, so the server's listener
// address becomes the "domain".
func testVersionClient(t *testing.T, handler http.HandlerFunc) *VersionCheckClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewVersionCheckClient(server.Client())
	client.Client = &http.Client{Transport: &rewriteHostTransport{target: server.Listener.Addr().String()}}
	return client
}

// rewriteHostTransport sends every request to the test server regardless
// of the host the client composed.
type rewriteHostTransport struct {
	target string
}

func (t *rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Host = t.target
	return http.DefaultTransport.RoundTrip(req)
}

func TestCheckVersionNoContentMeansUpToDate(t *testing.T) {
	client := testVersionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	descriptors, err := client.CheckVersion(context.Background(), VersionVector{BaseGame: "2025.05.01.0000.0000"})
	require.NoError(t, err)
	assert.Nil(t, descriptors)
}

func TestCheckVersionRequestDialect(t *testing.T) {
	var gotMethod, gotPath, gotHashCheck, gotBody string
	client := testVersionClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHashCheck = r.Header.Get("X-Hash-Check")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	})

	local := VersionVector{
		BaseGame:      "2025.05.01.0000.0000",
		Repository(1): "2025.04.01.0000.0000",
		Repository(3): "2025.03.01.0000.0000",
	}
	_, err := client.CheckVersion(context.Background(), local)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/http/win32/ffxivneo_release_game/2025.05.01.0000.0000/", gotPath)
	assert.Equal(t, "enabled", gotHashCheck)
	// Leading empty line, then only the populated expansion slots.
	assert.Equal(t, "\nex1\t2025.04.01.0000.0000\nex3\t2025.03.01.0000.0000\n", gotBody)
}

func TestCheckVersionParsesManifestAndDropsNoise(t *testing.T) {
	manifest := "--477D80B1_38BC_41d4_8B48_5273ADB89CAC\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"X-Patch-Length: 56796384\r\n" +
		"\r\n" +
		sampleBaseLine + "\r\n" +
		"1\t2\t3\t4\t5\t6\t7\r\n" + // too few fields
		"1024\t1024\t1\t1\t2025.06.11.0000.0000\tsha1\t0\t\tftp://patch-dl.ffxiv.com/bad.patch\r\n" +
		"1024\t1024\t1\t1\t2025.06.12.0000.0000\tsha1\t0\t\thttp://patch-dl.ffxiv.com/game/D2025.06.12.0000.0000.patch\r\n" +
		"--477D80B1_38BC_41d4_8B48_5273ADB89CAC--\r\n"

	client := testVersionClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, manifest)
	})

	descriptors, err := client.CheckVersion(context.Background(), VersionVector{BaseGame: "2025.05.01.0000.0000"})
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, GameVersion("2025.06.10.0000.0001"), descriptors[0].Version)
	assert.Equal(t, GameVersion("2025.06.12.0000.0000"), descriptors[1].Version)
}

func TestCheckVersionNoiseOnlyBodyMeansUpToDate(t *testing.T) {
	client := testVersionClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "--boundary\r\nContent-Type: text/plain\r\n--boundary--\r\n")
	})

	descriptors, err := client.CheckVersion(context.Background(), VersionVector{BaseGame: "2025.05.01.0000.0000"})
	require.NoError(t, err)
	assert.Nil(t, descriptors)
}

func TestCheckVersionServerErrorIsNetworkError(t *testing.T) {
	client := testVersionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.CheckVersion(context.Background(), VersionVector{BaseGame: "2025.05.01.0000.0000"})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusInternalServerError, netErr.StatusCode)
}

func TestCheckVersionFreshInstallUsesEpochVersion(t *testing.T) {
	var gotPath string
	client := testVersionClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := client.CheckVersion(context.Background(), VersionVector{})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/http/win32/ffxivneo_release_game/%s/", EpochVersion), gotPath)
}
