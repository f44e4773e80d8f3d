package universe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-metrics/pkg/config"
	"github.com/wonny/aegis-metrics/pkg/httputil"
	"github.com/wonny/aegis-metrics/pkg/logger"
)

const constituentsHTML = `<html><body>
<table class="nav"><tr><th>Menu</th></tr><tr><td>Home</td></tr></table>
<table id="constituents">
  <tr><th>Security</th><th>Symbol</th><th>Sector</th></tr>
  <tr><td>Apple Inc.</td><td>AAPL</td><td>IT</td></tr>
  <tr><td>Berkshire Hathaway</td><td> BRK.B </td><td>Financials</td></tr>
  <tr><td>Broken row</td></tr>
  <tr><td>Apple again</td><td>aapl</td><td>IT</td></tr>
</table>
</body></html>`

func TestParseList(t *testing.T) {
	input := `symbol,name
# comment line
AAPL,Apple
 msft  # trailing comment

"GOOG";Alphabet
TSLA	Tesla
`
	got, err := ParseList(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "msft", "GOOG", "TSLA"}, got)
}

func TestParseHTML(t *testing.T) {
	got, err := ParseHTML(strings.NewReader(constituentsHTML), "table", "symbol")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "BRK.B", "aapl"}, got)

	_, err = ParseHTML(strings.NewReader(constituentsHTML), "table", "Ticker")
	assert.Error(t, err)
}

func TestLoader_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "universe.txt")
	require.NoError(t, os.WriteFile(path, []byte("aaa\nBBB\naaa\n\nccc\n"), 0o644))

	got, err := NewLoader(nil, Options{}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, got)

	_, err = NewLoader(nil, Options{}).Load(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestLoader_HTMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sp500.html")
	require.NoError(t, os.WriteFile(path, []byte(constituentsHTML), 0o644))

	got, err := NewLoader(nil, Options{Selector: "#constituents", DotToDash: true}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "BRK-B"}, got)
}

func TestLoader_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(constituentsHTML))
	}))
	defer server.Close()

	client := httputil.New(config.SourceConfig{}, logger.Nop())
	got, err := NewLoader(client, Options{}).Load(context.Background(), server.URL+"/list")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "BRK.B"}, got)

	_, err = NewLoader(nil, Options{}).Load(context.Background(), server.URL)
	assert.Error(t, err, "URL source without client")
}
