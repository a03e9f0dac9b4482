package internal

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// VersionCheckClient talks to the patch-gamever endpoint that turns a local
// version vector into a patch manifest.
type VersionCheckClient struct {
	Client     *http.Client
	ServerHost string
	Product    string
}

// DefaultServerHost is the patch server domain suffix.
const DefaultServerHost = "ffxiv.com"

// DefaultProduct is the product segment of the version-check endpoint.
const DefaultProduct = "ffxivneo_release_game"

// NewVersionCheckClient creates a new VersionCheckClient instance
func NewVersionCheckClient(client *http.Client) *VersionCheckClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &VersionCheckClient{
		Client:     client,
		ServerHost: DefaultServerHost,
		Product:    DefaultProduct,
	}
}

// CheckVersion encodes the local version vector into the server's request
// dialect and decodes the manifest response into patch descriptors. A nil
// descriptor slice with a nil error means the installation is up to date.
func (c *VersionCheckClient) CheckVersion(ctx context.Context, local VersionVector) ([]*PatchDescriptor, error) {
	baseVersion, ok := local[BaseGame]
	if !ok {
		baseVersion = EpochVersion
	}

	url := fmt.Sprintf("http://patch-gamever.%s/http/win32/%s/%s/", c.ServerHost, c.Product, baseVersion)
	body := c.buildRequestBody(local)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Hash-Check", "enabled")
	req.Header.Set("User-Agent", "FFXIV PATCH CLIENT")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	var descriptors []*PatchDescriptor
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !isCandidatePatchLine(line) {
			continue
		}

		descriptor, err := ParsePatchLine(line)
		if err != nil {
			// The server interleaves patch lines with its own framing;
			// anything unparsable is noise, not a protocol failure.
			PushLogDebug(c, fmt.Sprintf("Discarding manifest line %q: %v", line, err))
			continue
		}
		descriptors = append(descriptors, descriptor)
	}
	if err := scanner.Err(); err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	if len(descriptors) == 0 {
		return nil, nil
	}
	return descriptors, nil
}

// buildRequestBody emits the version report dialect: a leading empty line
// (which makes the server skip its unrelated boot-version check), then one
// line per populated expansion slot.
func (c *VersionCheckClient) buildRequestBody(local VersionVector) string {
	var sb strings.Builder
	sb.WriteString("\n")
	for n := 1; n <= MaxExpansion; n++ {
		version, ok := local[Repository(n)]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("ex%d\t%s\n", n, version))
	}
	return sb.String()
}

// isCandidatePatchLine filters out the server's own multipart framing and
// header-like lines by prefix match.
func isCandidatePatchLine(line string) bool {
	if line == "" {
		return false
	}
	for _, prefix := range []string{"--", "Content-", "X-", "HTTP/"} {
		if strings.HasPrefix(line, prefix) {
			return false
		}
	}
	return true
}
