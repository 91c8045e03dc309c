package mockfirenet

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{Email: "stove-owner@example.com", Password: "hunter2"}

func testStove() StoveFixture {
	return StoveFixture{
		ID:              "12345678",
		Name:            "Living room",
		OEM:             "RIKA",
		StoveType:       "DOMO",
		LastSeenMinutes: 0,
		Sensors: Sensors{
			InputRoomTemperature:      "19.6",
			InputFlameTemperature:     240,
			InputBakeTemperature:      "1024",
			StatusMainState:           1,
			StatusSubState:            0,
			StatusWifiStrength:        -63,
			ParameterFeedRateTotal:    1205,
			ParameterRuntimePellets:   1800,
			ParameterIgnitionCount:    184,
			ParameterOnOffCycleCount:  41,
			ParameterErrorCount:       0,
			ParameterVersionMainBoard: 2160,
		},
		Controls: Controls{
			OnOff:             false,
			OperatingMode:     2,
			HeatingPower:      70,
			TargetTemperature: "20",
			Revision:          1522,
		},
	}
}

// newTestClient returns an HTTP client with a cookie jar, so the session
// cookie set at login is carried on subsequent requests, and with redirects
// disabled so tests can observe them.
func newTestClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func login(t *testing.T, client *http.Client, baseURL string, creds Credentials) *http.Response {
	resp, err := client.PostForm(baseURL+"/web/login", url.Values{
		"email":    {creds.Email},
		"password": {creds.Password},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestLoginSetsSessionCookie(t *testing.T) {
	server := httptest.NewServer(NewServer(testCreds, nil))
	defer server.Close()
	client := newTestClient(t)

	resp := login(t, client, server.URL, testCreds)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/web/summary", resp.Header.Get("Location"))

	base, _ := url.Parse(server.URL)
	cookies := client.Jar.Cookies(base)
	require.Len(t, cookies, 1)
	assert.Equal(t, "connect.sid", cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := NewServer(testCreds, nil)
	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)

	resp := login(t, client, server.URL, Credentials{Email: testCreds.Email, Password: "wrong"})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/web/login?failed", resp.Header.Get("Location"))
	assert.Equal(t, 0, s.LoginCount())
}

func TestSummaryListsStovesInOrder(t *testing.T) {
	s := NewServer(testCreds, nil)
	s.AddStove(testStove())
	second := testStove()
	second.ID = "87654321"
	second.Name = "Workshop"
	s.AddStove(second)

	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)
	login(t, client, server.URL, testCreds)

	resp, err := client.Get(server.URL + "/web/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	html := string(body)
	assert.Contains(t, html, `<a href="/web/stove/12345678">Living room</a>`)
	assert.Contains(t, html, `<a href="/web/stove/87654321">Workshop</a>`)
	assert.Less(t, strings.Index(html, "12345678"), strings.Index(html, "87654321"))
}

func TestSummaryRequiresSession(t *testing.T) {
	server := httptest.NewServer(NewServer(testCreds, nil))
	defer server.Close()
	client := newTestClient(t)

	resp, err := client.Get(server.URL + "/web/summary")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/web/login", resp.Header.Get("Location"))
}

func TestStatusReturnsStoveDocument(t *testing.T) {
	s := NewServer(testCreds, nil)
	s.AddStove(testStove())
	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)
	login(t, client, server.URL, testCreds)

	resp, err := client.Get(server.URL + "/api/client/12345678/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	m.In(t).Assert(string(body), m.JSONStrEqual(`{
		"stoveID": "12345678",
		"name": "Living room",
		"oem": "RIKA",
		"stoveType": "DOMO",
		"lastSeenMinutes": 0,
		"sensors": {
			"inputRoomTemperature": "19.6",
			"inputFlameTemperature": 240,
			"inputBakeTemperature": "1024",
			"statusMainState": 1,
			"statusSubState": 0,
			"statusWifiStrength": -63,
			"parameterFeedRateTotal": 1205,
			"parameterRuntimePellets": 1800,
			"parameterIgnitionCount": 184,
			"parameterOnOffCycleCount": 41,
			"parameterErrorCount": 0,
			"parameterVersionMainBoard": 2160
		},
		"controls": {
			"onOff": false,
			"operatingMode": 2,
			"heatingPower": 70,
			"targetTemperature": "20",
			"revision": 1522
		}
	}`))
}

func TestStatusUnknownStove(t *testing.T) {
	s := NewServer(testCreds, nil)
	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)
	login(t, client, server.URL, testCreds)

	resp, err := client.Get(server.URL + "/api/client/nope/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusRequiresSession(t *testing.T) {
	s := NewServer(testCreds, nil)
	s.AddStove(testStove())
	server := httptest.NewServer(s)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/client/12345678/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestControlsUpdateBumpsRevision(t *testing.T) {
	s := NewServer(testCreds, nil)
	s.AddStove(testStove())
	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)
	login(t, client, server.URL, testCreds)

	resp, err := client.PostForm(server.URL+"/api/client/12345678/controls", url.Values{
		"revision":          {"1522"},
		"onOff":             {"true"},
		"targetTemperature": {"22"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	m.In(t).Assert(string(body), m.JSONStrEqual(`{"stoveID":"12345678","revision":1523}`))

	status, err := client.Get(server.URL + "/api/client/12345678/status")
	require.NoError(t, err)
	defer status.Body.Close()
	doc, err := io.ReadAll(status.Body)
	require.NoError(t, err)
	m.In(t).Assert(doc, m.JSONOptProperty("controls").Should(m.AllOf(
		m.JSONProperty("onOff").Should(m.Equal(true)),
		m.JSONProperty("targetTemperature").Should(m.Equal("22")),
		m.JSONProperty("revision").Should(m.Equal(1523)),
	)))
}

func TestControlsRejectStaleRevision(t *testing.T) {
	s := NewServer(testCreds, nil)
	s.AddStove(testStove())
	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)
	login(t, client, server.URL, testCreds)

	resp, err := client.PostForm(server.URL+"/api/client/12345678/controls", url.Values{
		"revision": {"1000"},
		"onOff":    {"true"},
	})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpdateStoveIsVisibleOnNextPoll(t *testing.T) {
	s := NewServer(testCreds, nil)
	s.AddStove(testStove())
	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)
	login(t, client, server.URL, testCreds)

	s.UpdateStove("12345678", func(f *StoveFixture) {
		f.Sensors.InputRoomTemperature = "21.3"
		f.LastSeenMinutes = 2
	})

	resp, err := client.Get(server.URL + "/api/client/12345678/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	m.In(t).Assert(body, m.AllOf(
		m.JSONProperty("lastSeenMinutes").Should(m.Equal(2)),
		m.JSONProperty("sensors").Should(
			m.JSONProperty("inputRoomTemperature").Should(m.Equal("21.3"))),
	))
}

func TestLogoutInvalidatesSession(t *testing.T) {
	s := NewServer(testCreds, nil)
	s.AddStove(testStove())
	server := httptest.NewServer(s)
	defer server.Close()
	client := newTestClient(t)
	login(t, client, server.URL, testCreds)

	resp, err := client.Get(server.URL + "/web/logout")
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = client.Get(server.URL + "/api/client/12345678/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
