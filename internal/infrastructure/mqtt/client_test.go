package mqtt

import (
	"testing"
	"time"
)

func TestBuildClientOptions_PlainTCP(t *testing.T) {
	cfg := ConnConfig{
		Host:     "localhost",
		Port:     1883,
		ClientID: "bridge-mqtt-1",
	}

	opts := buildClientOptions(cfg)

	servers := opts.Servers
	if len(servers) != 1 {
		t.Fatalf("expected 1 broker URL, got %d", len(servers))
	}
	if got := servers[0].String(); got != "tcp://localhost:1883" {
		t.Errorf("broker URL = %q, want tcp://localhost:1883", got)
	}
	if opts.ClientID != "bridge-mqtt-1" {
		t.Errorf("ClientID = %q, want bridge-mqtt-1", opts.ClientID)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := ConnConfig{
		Host:     "broker.example.com",
		Port:     8883,
		ClientID: "bridge-mqtt-2",
		TLS:      true,
	}

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://broker.example.com:8883" {
		t.Errorf("broker URL = %q, want ssl://broker.example.com:8883", got)
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS MinVersion = %v, want %v", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestBuildClientOptions_ReconnectBounds(t *testing.T) {
	cfg := ConnConfig{
		Host:            "localhost",
		Port:            1883,
		ClientID:        "bridge-mqtt-3",
		ReconnectMinSec: 2,
		ReconnectMaxSec: 60,
	}

	opts := buildClientOptions(cfg)

	if opts.ConnectRetryInterval != 2*time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 2s", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 60*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 60s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptions_ReconnectDefaults(t *testing.T) {
	cfg := ConnConfig{Host: "localhost", Port: 1883, ClientID: "bridge-mqtt-4"}

	opts := buildClientOptions(cfg)

	if opts.ConnectRetryInterval != defaultReconnectMinSec*time.Second {
		t.Errorf("ConnectRetryInterval = %v, want default %ds", opts.ConnectRetryInterval, defaultReconnectMinSec)
	}
	if opts.MaxReconnectInterval != defaultReconnectMaxSec*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want default %ds", opts.MaxReconnectInterval, defaultReconnectMaxSec)
	}
}

func TestBuildClientOptions_Auth(t *testing.T) {
	cfg := ConnConfig{
		Host: "localhost", Port: 1883, ClientID: "bridge-mqtt-5",
		Username: "bridge", Password: "secret",
	}

	opts := buildClientOptions(cfg)

	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials not applied: got user=%q pass=%q", opts.Username, opts.Password)
	}
}

func TestClient_CloseWithoutConnect(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close on unconnected client returned error: %v", err)
	}
}

func TestClient_IsConnectedFalseBeforeConnect(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if c.IsConnected() {
		t.Error("expected IsConnected to be false before Connect")
	}
}

func TestClient_SetOnConnectSetOnDisconnect(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	called := false
	c.SetOnConnect(func() { called = true })
	c.callbackMu.RLock()
	cb := c.onConnect
	c.callbackMu.RUnlock()
	cb()
	if !called {
		t.Error("onConnect callback was not invoked")
	}

	var gotErr error
	c.SetOnDisconnect(func(err error) { gotErr = err })
	c.callbackMu.RLock()
	dcb := c.onDisconnect
	c.callbackMu.RUnlock()
	dcb(ErrNotConnected)
	if gotErr != ErrNotConnected {
		t.Errorf("onDisconnect callback got %v, want ErrNotConnected", gotErr)
	}
}
