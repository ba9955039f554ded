package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// wireResponse is a response as a client decodes it off the wire.
type wireResponse struct {
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

// session feeds lines to Serve and decodes every response written back.
func session(t *testing.T, s *Server, lines ...string) []wireResponse {
	t.Helper()
	var out bytes.Buffer
	if err := s.Serve(strings.NewReader(strings.Join(lines, "\n")), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	var resps []wireResponse
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r wireResponse
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		resps = append(resps, r)
	}
	return resps
}

func call(id int, name string, args string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, id, name, args)
}

func TestNew(t *testing.T) {
	s := newTestServer(t)
	if s.cache == nil || s.cache.Len() != 0 {
		t.Fatal("New() should start with an empty cache")
	}
	if s.pipeline == nil {
		t.Fatal("New() did not keep the pipeline")
	}
}

func TestServe_Handshake(t *testing.T) {
	resps := session(t, newTestServer(t),
		`{"jsonrpc":"2.0","id":"init","method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	if len(resps) != 2 {
		t.Fatalf("Expected 2 responses (the notification gets none), got %d", len(resps))
	}

	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    struct {
			Tools map[string]interface{} `json:"tools"`
		} `json:"capabilities"`
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resps[0].Result, &init); err != nil {
		t.Fatalf("initialize result: %v", err)
	}
	if resps[0].ID != "init" {
		t.Errorf("ID: got %v, want init", resps[0].ID)
	}
	if init.ProtocolVersion != "2024-11-05" || init.Capabilities.Tools == nil {
		t.Errorf("initialize: %+v", init)
	}
	if init.ServerInfo.Name != "colorcard-mcp" || init.ServerInfo.Version != "test" {
		t.Errorf("serverInfo: %+v", init.ServerInfo)
	}

	var list struct {
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Type       string                     `json:"type"`
				Properties map[string]json.RawMessage `json:"properties"`
				Required   []string                   `json:"required"`
			} `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resps[1].Result, &list); err != nil {
		t.Fatalf("tools/list result: %v", err)
	}
	want := []string{
		"image_load", "colorcard_detect", "colorcard_rectify", "colorcard_correct",
		"colorcard_apply", "colorcard_correct_batch", "colorcard_render_target",
	}
	if len(list.Tools) != len(want) {
		t.Fatalf("Expected %d tools on the wire, got %d", len(want), len(list.Tools))
	}
	for i, tool := range list.Tools {
		if tool.Name != want[i] {
			t.Errorf("tool %d: got %s, want %s", i, tool.Name, want[i])
		}
		if tool.InputSchema.Type != "object" || len(tool.InputSchema.Required) == 0 {
			t.Errorf("%s: schema %+v", tool.Name, tool.InputSchema)
		}
	}
}

func TestServe_Errors(t *testing.T) {
	blank := createBlankFile(t)
	resps := session(t, newTestServer(t),
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":"oops"}`,
		call(3, "colorcard_detect", fmt.Sprintf(`{"path":%q}`, blank)),
		call(4, "colorcard_correct_batch", `{"paths":["a.png"],"parallel":-1}`),
		call(5, "image_crop", `{}`),
	)
	if len(resps) != 6 {
		t.Fatalf("Expected 6 responses, got %d", len(resps))
	}

	tests := []struct {
		id   interface{}
		code int
		kind string
	}{
		{nil, -32700, ""},
		{float64(1), -32601, ""},
		{float64(2), -32602, ""},
		{float64(3), -32000, "InsufficientMarkers"},
		{float64(4), -32000, "InvalidConfig"},
		{float64(5), -32000, "Internal"},
	}
	for i, tt := range tests {
		r := resps[i]
		if r.ID != tt.id {
			t.Errorf("response %d: ID %v, want %v", i, r.ID, tt.id)
		}
		if r.Error == nil {
			t.Errorf("response %d: expected error, got result %s", i, r.Result)
			continue
		}
		if r.Error.Code != tt.code {
			t.Errorf("response %d: code %d, want %d", i, r.Error.Code, tt.code)
		}
		if tt.kind == "" {
			continue
		}
		var te ToolError
		if err := json.Unmarshal(r.Error.Data, &te); err != nil {
			t.Errorf("response %d: data is not a ToolError: %s", i, r.Error.Data)
			continue
		}
		if te.Kind != tt.kind {
			t.Errorf("response %d: kind %q, want %q (%s)", i, te.Kind, tt.kind, te.Message)
		}
		if te.Message == "" {
			t.Errorf("response %d: ToolError without message", i)
		}
	}
}

func TestServe_KeepsGoingAfterErrors(t *testing.T) {
	resps := session(t, newTestServer(t),
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		``,
		`{broken`,
		`{"jsonrpc":"2.0","id":"two","method":"ping"}`,
	)
	if len(resps) != 3 {
		t.Fatalf("Expected 3 responses, got %d", len(resps))
	}
	if resps[0].ID != float64(1) || resps[0].Error != nil {
		t.Errorf("first ping: %+v", resps[0])
	}
	if resps[1].Error == nil || resps[1].Error.Code != -32700 {
		t.Errorf("Expected parse error, got %+v", resps[1])
	}
	if resps[2].ID != "two" || resps[2].Error != nil {
		t.Errorf("second ping: %+v", resps[2])
	}
}

func TestServe_LongLine(t *testing.T) {
	// Batch requests with many paths run well past bufio's 64 KiB default.
	paths := make([]string, 5000)
	for i := range paths {
		paths[i] = fmt.Sprintf("/captures/session-%04d/frame.png", i)
	}
	args, err := json.Marshal(map[string]interface{}{"paths": paths, "parallel": 0})
	if err != nil {
		t.Fatal(err)
	}
	line := call(1, "colorcard_correct_batch", string(args))
	if len(line) < 128*1024 {
		t.Fatalf("request is only %d bytes", len(line))
	}

	resps := session(t, newTestServer(t), line)
	if len(resps) != 1 || resps[0].ID != float64(1) {
		t.Fatalf("Expected one response for the long request, got %+v", resps)
	}
}
