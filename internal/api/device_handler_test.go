package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hlk-radar/internal/api/middleware"
	"github.com/taoyao-code/hlk-radar/internal/driver"
	"github.com/taoyao-code/hlk-radar/internal/link/linktest"
	"github.com/taoyao-code/hlk-radar/internal/protocol/hlk"
	"github.com/taoyao-code/hlk-radar/internal/registry"
	"github.com/taoyao-code/hlk-radar/internal/session"
)

const (
	addr2410 = "AA:BB:CC:DD:EE:01"
	addr2412 = "AA:BB:CC:DD:EE:02"
)

type auditEntry struct {
	address string
	rid     uuid.UUID
	op      string
	err     error
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (f *fakeAuditor) Command(address string, rid uuid.UUID, op string, _ time.Duration, err error) {
	f.mu.Lock()
	f.entries = append(f.entries, auditEntry{address, rid, op, err})
	f.mu.Unlock()
}

func (f *fakeAuditor) last() auditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[len(f.entries)-1]
}

type fixture struct {
	engine *gin.Engine
	audit  *fakeAuditor
	radars map[string]*linktest.Radar
	reg    *registry.Registry
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{audit: &fakeAuditor{}, radars: map[string]*linktest.Radar{}, reg: registry.New(nil)}
	for address, p := range map[string]*hlk.Profile{addr2410: hlk.LD2410(), addr2412: hlk.LD2412()} {
		radar := linktest.NewRadar(p).Seed()
		l := linktest.New()
		l.SetResponder(radar.Respond)
		d := driver.New(driver.Config{
			Address:          address,
			CommandTimeout:   100 * time.Millisecond,
			IdleDisconnect:   -1,
			PostConnectDelay: -1,
			CommandRetries:   -1,
		}, p, l)
		require.NoError(t, f.reg.Add(d))
		f.radars[address] = radar
	}
	t.Cleanup(f.reg.Stop)

	deps.Registry = f.reg
	deps.Audit = f.audit
	f.engine = gin.New()
	RegisterRoutes(f.engine, deps)
	return f
}

func (f *fixture) do(method, path string, body any) (*httptest.ResponseRecorder, StandardResponse) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	var resp StandardResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestListAndGetDevices(t *testing.T) {
	sess := session.New(time.Minute, "gw-1")
	f := newFixture(t, Deps{Session: sess})
	sess.OnLinkUp(addr2410, time.Now())

	w, resp := f.do(http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, resp.Code)
	assert.NotEmpty(t, resp.RequestID)

	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 2, data["total"])
	devices := data["devices"].([]any)
	first := devices[0].(map[string]any)
	assert.Equal(t, addr2410, first["address"])
	assert.Equal(t, "ld2410", first["model"])
	assert.Equal(t, "disconnected", first["state"])
	assert.Equal(t, true, first["online"])
	assert.Equal(t, "gw-1", first["owner"])
	assert.NotContains(t, first, "snapshot")

	w, resp = f.do(http.MethodGet, "/api/devices/aa:bb:cc:dd:ee:02", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dev := resp.Data.(map[string]any)
	assert.Equal(t, addr2412, dev["address"])
	assert.Equal(t, false, dev["online"])

	w, resp = f.do(http.MethodGet, "/api/devices/11:22:33:44:55:66", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp.Error)
}

func TestCommands(t *testing.T) {
	f := newFixture(t, Deps{})

	t.Run("连接与刷新", func(t *testing.T) {
		w, _ := f.do(http.MethodPost, "/api/devices/"+addr2410+"/connect", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w, resp := f.do(http.MethodPost, "/api/devices/"+addr2410+"/refresh", nil)
		require.Equal(t, http.StatusOK, w.Code)
		dev := resp.Data.(map[string]any)
		assert.Equal(t, "connected", dev["state"])
		snap := dev["snapshot"].(map[string]any)
		assert.EqualValues(t, 5, snap["absence_delay"])

		e := f.audit.last()
		assert.Equal(t, "refresh", e.op)
		assert.Equal(t, addr2410, e.address)
		assert.NotEqual(t, uuid.Nil, e.rid)
		assert.Equal(t, resp.RequestID, e.rid.String())
	})

	t.Run("工程模式", func(t *testing.T) {
		w, resp := f.do(http.MethodPost, "/api/devices/"+addr2410+"/engineering", gin.H{"enabled": true})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, resp.Data.(map[string]any)["engineering_mode"])
		assert.Contains(t, f.radars[addr2410].Received(), hlk.WordEnableEngineering)
	})

	t.Run("LD2412灵敏度全部距离门", func(t *testing.T) {
		w, _ := f.do(http.MethodPost, "/api/devices/"+addr2412+"/sensitivity", gin.H{"move": 60, "still": 30})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, f.radars[addr2412].Received(), hlk.Word(0x0003))
		assert.Contains(t, f.radars[addr2412].Received(), hlk.Word(0x0004))
	})

	t.Run("断开", func(t *testing.T) {
		w, resp := f.do(http.MethodPost, "/api/devices/"+addr2410+"/disconnect", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "disconnected", resp.Data.(map[string]any)["state"])
	})
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t, Deps{})
	f.radars[addr2410].Silence(hlk.WordEnableEngineering)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		kind   string
	}{
		{"缺少参数", "/api/devices/" + addr2410 + "/absence-delay", gin.H{}, http.StatusBadRequest, "invalid"},
		{"灵敏度越界", "/api/devices/" + addr2410 + "/sensitivity", gin.H{"move": 101, "still": 10}, http.StatusBadRequest, "invalid"},
		{"分辨率档位非法", "/api/devices/" + addr2410 + "/resolution", gin.H{"index": 5}, http.StatusBadRequest, "invalid"},
		{"型号不支持", "/api/devices/" + addr2412 + "/resolution", gin.H{"index": 1}, http.StatusNotImplemented, "unsupported"},
		{"光敏型号不支持", "/api/devices/" + addr2412 + "/light", gin.H{"mode": 1}, http.StatusNotImplemented, "unsupported"},
		{"命令超时", "/api/devices/" + addr2410 + "/engineering", gin.H{"enabled": true}, http.StatusGatewayTimeout, "timeout"},
		{"未知设备", "/api/devices/11:22:33:44:55:66/reboot", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, resp.Error)
		})
	}
}

func TestCommandRateLimit(t *testing.T) {
	f := newFixture(t, Deps{CommandRate: 0.001, CommandBurst: 1})

	w, _ := f.do(http.MethodPost, "/api/devices/"+addr2410+"/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, resp := f.do(http.MethodPost, "/api/devices/"+addr2410+"/connect", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", resp.Error)

	// 其他设备不受影响
	w, _ = f.do(http.MethodPost, "/api/devices/"+addr2412+"/connect", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCommandLogsDisabled(t *testing.T) {
	f := newFixture(t, Deps{})
	w, _ := f.do(http.MethodGet, "/api/devices/"+addr2410+"/commands", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRoutesAuth(t *testing.T) {
	f := newFixture(t, Deps{Auth: middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_123456789"}}})

	w, _ := f.do(http.MethodGet, "/api/devices", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req.Header.Set("X-API-Key", "sk_test_123456789")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
