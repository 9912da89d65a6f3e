package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tld/internal/app"
	"tld/internal/cli"
	"tld/internal/signing"
	"tld/internal/testing/mock"
	pkgauth "tld/pkg/auth"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc *mock.SigningService
	fs  afero.Fs
}

// setupTestApp points appFactory at a mock signing service. Every command
// run gets a fresh application sharing one in-memory filesystem, as
// successive invocations of the binary would.
func setupTestApp(t *testing.T, mutate func(*mock.SigningServiceConfig), vars map[string]string) *testEnv {
	t.Helper()
	cfg := mock.DefaultSigningServiceConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	svc := mock.NewSigningService(cfg)
	t.Cleanup(svc.Close)

	env := map[string]string{
		"TLD_CONFIG_DIR":       t.TempDir(),
		"TLD_SIGNING_ENDPOINT": svc.URL(),
		"TLD_STORAGE_DOMAIN":   svc.Host(),
		"TLD_RETRY_TOTAL":      "0",
	}
	for k, v := range vars {
		env[k] = v
	}

	fs := afero.NewMemMapFs()
	original := appFactory
	appFactory = func(cmd *cobra.Command) (*app.Application, error) {
		c := app.NewConfig(false, "", "")
		c.LookupEnv = func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}
		c.Fs = fs
		c.HTTPClient = svc.Client()
		c.Clock = mock.NewClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
		c.LogOutput = io.Discard
		c.Presenter = cli.NewDevicePresenter(cmd.ErrOrStderr(), false)
		return app.NewApplication(c)
	}
	t.Cleanup(func() { appFactory = original })

	return &testEnv{svc: svc, fs: fs}
}

type fakePrompter struct {
	confirm bool
	secret  string
}

func (p fakePrompter) Confirm(string) (bool, error)  { return p.confirm, nil }
func (p fakePrompter) Secret(string) (string, error) { return p.secret, nil }

func usePrompter(t *testing.T, p cli.Prompter) {
	original := prompter
	prompter = p
	t.Cleanup(func() { prompter = original })
}

func execute(c *cobra.Command, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	c.SetOut(&stdout)
	c.SetErr(&stderr)
	c.SetArgs(args)
	err := c.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSignCmd_URLs(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})
	inDomain := "https://x." + env.svc.Host() + "/bucket/a.tif"
	foreign := "https://other.org/b.tif"

	stdout, _, err := execute(newSignCmd(), inDomain, foreign)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, mock.SignedURL(inDomain, 1), lines[0])
	assert.Equal(t, foreign, lines[1])
	assert.Len(t, env.svc.Batches(mock.RouteRead), 1)
}

func TestSignCmd_Put(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})

	_, _, err := execute(newSignCmd(), "--put", "https://x."+env.svc.Host()+"/bucket/new.tif")
	require.NoError(t, err)
	assert.Len(t, env.svc.Batches(mock.RouteWrite), 1)
	assert.Empty(t, env.svc.Batches(mock.RouteRead))
}

func TestSignCmd_MarkupFile(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})
	href := "https://x." + env.svc.Host() + "/bucket/a.tif"
	vrt := "<VRTDataset><SourceFilename>/vsicurl/" + href + "</SourceFilename></VRTDataset>"
	require.NoError(t, afero.WriteFile(env.fs, "/work/mosaic.vrt", []byte(vrt), 0o644))

	stdout, _, err := execute(newSignCmd(), "/work/mosaic.vrt")
	require.NoError(t, err)
	assert.Contains(t, stdout, href+"?X-Amz-Credential=mock&amp;X-Amz-Signature=sig1</SourceFilename>")
}

func TestSignCmd_WriteJSONFile(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})
	href := "https://x." + env.svc.Host() + "/bucket/b04.tif"
	item := `{"type": "Feature", "id": "scene", "assets": {"b04": {"href": "` + href + `"}}}`
	require.NoError(t, afero.WriteFile(env.fs, "/work/item.json", []byte(item), 0o644))

	stdout, stderr, err := execute(newSignCmd(), "--write", "/work/item.json")
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Signed /work/item.json")

	data, err := afero.ReadFile(env.fs, "/work/item.json")
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	got := doc["assets"].(map[string]interface{})["b04"].(map[string]interface{})["href"].(string)
	assert.True(t, signing.IsSigned(got))
	assert.Equal(t, "scene", doc["id"])
}

func TestSignCmd_ConfigurationErrorExitCode(t *testing.T) {
	setupTestApp(t, nil, map[string]string{"TLD_SIGNING_ENDPOINT": "ftp://nope"})

	_, _, err := execute(newSignCmd(), "https://x.example/a.tif")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCodeConfig, getExitCode(err))
}

func TestSignCmd_ConnectionErrorExitCode(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	env := setupTestApp(t, nil, map[string]string{
		"TLD_DISABLE_AUTH":     "true",
		"TLD_SIGNING_ENDPOINT": down.URL,
	})

	_, _, err := execute(newSignCmd(), "https://x."+env.svc.Host()+"/bucket/a.tif")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCodeConnection, getExitCode(err))
	assert.Contains(t, err.Error(), "Network error")
	assert.Empty(t, env.svc.Batches(mock.RouteRead))
}

func TestSignCmd_Search(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{
		"TLD_DISABLE_AUTH":         "true",
		"TLD_RETRY_TOTAL":          "2",
		"TLD_RETRY_BACKOFF_FACTOR": "0",
	})
	href := "https://x." + env.svc.Host() + "/bucket/a.tif"

	var hits int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		io.WriteString(w, `{"type":"FeatureCollection","features":[`+
			`{"type":"Feature","id":"scene","assets":{"b04":{"href":"`+href+`"}}}]}`)
	}))
	defer api.Close()

	stdout, _, err := execute(newSignCmd(), "--search", api.URL+"/search?collections=spot")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "503 retried once")

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	features := doc["features"].([]interface{})
	require.Len(t, features, 1)
	got := features[0].(map[string]interface{})["assets"].(map[string]interface{})["b04"].(map[string]interface{})["href"].(string)
	assert.Equal(t, mock.SignedURL(href, 1), got)
	assert.Contains(t, stdout, "X-Amz-Signature")
}

func TestSignCmd_SearchRejectsPut(t *testing.T) {
	setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})

	_, _, err := execute(newSignCmd(), "--put", "--search", "http://127.0.0.1:1/search")
	assert.ErrorContains(t, err, "--put cannot be combined with --search")
}

func TestSignCmd_RequiresInput(t *testing.T) {
	setupTestApp(t, nil, nil)

	_, _, err := execute(newSignCmd())
	assert.ErrorContains(t, err, "requires at least one URL or file")
}

func TestRun_PrintsMetrics(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})
	t.Cleanup(func() {
		_ = rootCmd.PersistentFlags().Set("metrics", "false")
		showStats = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--metrics", "sign", "https://x." + env.svc.Host() + "/bucket/a.tif"})

	require.NoError(t, run(rootCmd))
	assert.Contains(t, stdout.String(), "X-Amz-Signature")
	assert.Contains(t, stderr.String(), "# TYPE tld_signing_urls_total counter")
	assert.Contains(t, stderr.String(), "tld_signing_requests_total")
}

func TestRun_NoMetricsByDefault(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var stderr bytes.Buffer
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"sign", "https://x." + env.svc.Host() + "/bucket/a.tif"})

	require.NoError(t, run(rootCmd))
	assert.NotContains(t, stderr.String(), "# TYPE")
}

func TestAuthCmd_Lifecycle(t *testing.T) {
	env := setupTestApp(t, func(c *mock.SigningServiceConfig) { c.RequireAuth = true }, nil)

	stdout, stderr, err := execute(newAuthCmd(), "login")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged in to "+env.svc.URL())
	assert.Contains(t, stdout, "jdoe")
	assert.Contains(t, stderr, "user_code=ABCD-EFGH")

	stdout, _, err = execute(newAuthCmd(), "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "OAuth2 device authorization")
	assert.Contains(t, stdout, "Valid")
	assert.Contains(t, stdout, "Available")

	stdout, _, err = execute(newAuthCmd(), "status", "-o", "json")
	require.NoError(t, err)
	var doc pkgauth.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, pkgauth.MethodOAuth2, doc.Method.Kind)
	require.NotNil(t, doc.Token)
	assert.Equal(t, "valid", doc.Token.State)
	assert.True(t, doc.Token.RefreshAvailable)
	assert.True(t, doc.Authenticated())

	stdout, _, err = execute(newAuthCmd(), "whoami")
	require.NoError(t, err)
	assert.Equal(t, "jdoe\n", stdout)
	assert.Equal(t, 1, env.svc.Polls(), "stored token reused across invocations")

	stdout, _, err = execute(newAuthCmd(), "logout", "--yes")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged out")

	stdout, _, err = execute(newAuthCmd(), "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not authenticated")
}

func TestAuthCmd_StatusDocument(t *testing.T) {
	setupTestApp(t, nil, map[string]string{
		"TLD_ACCESS_KEY": "AKENV",
		"TLD_SECRET_KEY": "sk",
	})

	stdout, _, err := execute(newAuthCmd(), "status", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "kind: api_key")
	assert.Contains(t, stdout, "access_key: AKENV")
	assert.NotContains(t, stdout, "token:")

	_, _, err = execute(newAuthCmd(), "status", "-o", "xml")
	require.Error(t, err)
}

func TestAuthCmd_LoginExpiredLink(t *testing.T) {
	setupTestApp(t, func(c *mock.SigningServiceConfig) {
		c.ApproveAfter = -1
		c.DeviceExpiresIn = 10
	}, nil)

	_, _, err := execute(newAuthCmd(), "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tld auth login")
	assert.Equal(t, cli.ExitCodeAuthRequired, getExitCode(err))
}

func TestAPIKeyCmd_RegisterListRemove(t *testing.T) {
	env := setupTestApp(t, func(c *mock.SigningServiceConfig) { c.RequireAuth = true }, nil)

	stdout, _, err := execute(newAPIKeyCmd(), "register", "laptop")
	require.NoError(t, err)
	require.Len(t, env.svc.APIKeys(), 1)
	accessKey := env.svc.APIKeys()[0]
	assert.Contains(t, stdout, "Registered API key "+accessKey)

	stdout, _, err = execute(newAPIKeyCmd(), "list", "-o", "plain")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ACCESS KEY")
	assert.Contains(t, stdout, accessKey)
	assert.Contains(t, stdout, "laptop")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "*"), "registered key is marked")

	stdout, _, err = execute(newAPIKeyCmd(), "remove")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Revoked and removed API key "+accessKey)
	assert.Empty(t, env.svc.APIKeys())
}

func TestAPIKeyCmd_RegisterExistingKey(t *testing.T) {
	env := setupTestApp(t, func(c *mock.SigningServiceConfig) { c.RequireAuth = true }, nil)
	env.svc.AddAPIKey("AKEXISTING", "s3cret", "issued elsewhere")
	usePrompter(t, fakePrompter{secret: "s3cret"})

	_, _, err := execute(newAPIKeyCmd(), "register", "--access-key", "AKEXISTING")
	require.NoError(t, err)

	_, _, err = execute(newSignCmd(), "https://x."+env.svc.Host()+"/bucket/a.tif")
	require.NoError(t, err)
	batches := env.svc.Batches(mock.RouteRead)
	require.Len(t, batches, 1)
	assert.Equal(t, "AKEXISTING", batches[0].Headers.Get("access-key"))
	assert.Zero(t, env.svc.Polls())

	stdout, _, err := execute(newAPIKeyCmd(), "remove", "--keep-remote")
	require.NoError(t, err)
	assert.Contains(t, stdout, "still valid")
	assert.Equal(t, []string{"AKEXISTING"}, env.svc.APIKeys())
}

func TestAPIKeyCmd_RevokeAll(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})
	env.svc.AddAPIKey("AK1", "s1", "one")
	env.svc.AddAPIKey("AK2", "s2", "two")

	usePrompter(t, fakePrompter{confirm: false})
	stdout, _, err := execute(newAPIKeyCmd(), "revoke-all")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Aborted")
	assert.Len(t, env.svc.APIKeys(), 2)

	stdout, _, err = execute(newAPIKeyCmd(), "revoke-all", "--yes")
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 API key(s) revoked")
	assert.Empty(t, env.svc.APIKeys())
}

func TestPushCmd(t *testing.T) {
	env := setupTestApp(t, nil, map[string]string{"TLD_DISABLE_AUTH": "true"})
	require.NoError(t, afero.WriteFile(env.fs, "/work/scene.tif", []byte("pixels"), 0o644))

	stdout, _, err := execute(newPushCmd(), "/work/scene.tif", env.svc.URL()+"bucket/scene.tif")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Uploaded /work/scene.tif")
	assert.NotContains(t, stdout, "X-Amz-Signature", "signature redacted")

	data, ok := env.svc.Upload("/bucket/scene.tif")
	require.True(t, ok)
	assert.Equal(t, "pixels", string(data))
}
