package provision

import (
	"context"
	"encoding/json"
	"testing"

	"reel/internal/config"
	"reel/internal/obs"
	"reel/internal/obs/obstest"
)

func connect(t *testing.T, server *obstest.Server) *obs.Client {
	t.Helper()
	client, err := obs.Connect(context.Background(), obs.Options{URL: server.URL()})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func succeed(_ json.RawMessage) (any, error) { return nil, nil }

func alreadyExists(_ json.RawMessage) (any, error) {
	return nil, obstest.Fail(601, "resource already exists")
}

func TestPlanFromProfile(t *testing.T) {
	profile := config.Profile{
		Displays:    1,
		Cameras:     []string{"Camera 1", "Camera 2"},
		AudioInputs: []string{"Mic 1"},
	}
	bindings := Bindings{
		Video: map[string]string{"Camera 1": "/dev/video0"},
		Audio: map[string]string{"Mic 1": "alsa_input.usb-mic"},
	}

	plan := PlanFromProfile("multicam", "Tutorial Recording", profile, bindings)
	if plan.Scene != "Tutorial Recording" || plan.Profile != "multicam" {
		t.Fatalf("plan identity wrong: %+v", plan)
	}
	if len(plan.Sources) != 4 {
		t.Fatalf("got %d sources, want 4", len(plan.Sources))
	}
	if plan.Sources[0].Kind != KindDisplayCapture {
		t.Fatalf("first source kind = %s", plan.Sources[0].Kind)
	}
	if got := plan.Sources[1].Settings["device_id"]; got != "/dev/video0" {
		t.Fatalf("bound camera device = %v", got)
	}
	if _, ok := plan.Sources[2].Settings["device_id"]; ok {
		t.Fatal("unbound camera must not carry a device id")
	}
	if got := plan.Sources[3].Settings["device_id"]; got != "alsa_input.usb-mic" {
		t.Fatalf("bound mic device = %v", got)
	}
}

func TestEnsureSceneCreatesAndSwitches(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("CreateScene", succeed),
		obstest.WithHandler("GetSceneList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"currentProgramSceneName": "Default", "scenes": []any{}}, nil
		}),
		obstest.WithHandler("SetCurrentProgramScene", succeed),
	)
	p := New(connect(t, server), nil)

	if err := p.EnsureScene(context.Background(), "Tutorial Recording"); err != nil {
		t.Fatalf("EnsureScene failed: %v", err)
	}
	if got := len(server.Requests("SetCurrentProgramScene")); got != 1 {
		t.Fatalf("SetCurrentProgramScene called %d times, want 1", got)
	}
}

func TestEnsureSceneTreatsExistingAsSuccess(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("CreateScene", alreadyExists),
		obstest.WithHandler("GetSceneList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"currentProgramSceneName": "Tutorial Recording"}, nil
		}),
	)
	p := New(connect(t, server), nil)

	if err := p.EnsureScene(context.Background(), "Tutorial Recording"); err != nil {
		t.Fatalf("EnsureScene failed: %v", err)
	}
	if got := len(server.Requests("SetCurrentProgramScene")); got != 0 {
		t.Fatalf("scene already current, but switched %d times", got)
	}
}

func TestEnsureProfileSwitchesWhenNotCurrent(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("CreateProfile", alreadyExists),
		obstest.WithHandler("GetProfileList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"currentProfileName": "Untitled", "profiles": []string{"Untitled", "multicam"}}, nil
		}),
		obstest.WithHandler("SetCurrentProfile", succeed),
	)
	p := New(connect(t, server), nil)

	if err := p.EnsureProfile(context.Background(), "multicam"); err != nil {
		t.Fatalf("EnsureProfile failed: %v", err)
	}
	if got := len(server.Requests("SetCurrentProfile")); got != 1 {
		t.Fatalf("SetCurrentProfile called %d times, want 1", got)
	}
}

func TestEnsureInputCreatesFresh(t *testing.T) {
	server := obstest.New(t, obstest.WithHandler("CreateInput", succeed))
	p := New(connect(t, server), nil)

	source := Source{Name: "Camera 1", Kind: KindVideoCapture, Settings: map[string]any{"device_id": "/dev/video0"}}
	if err := p.EnsureInput(context.Background(), "Tutorial Recording", source); err != nil {
		t.Fatalf("EnsureInput failed: %v", err)
	}

	requests := server.Requests("CreateInput")
	if len(requests) != 1 {
		t.Fatalf("CreateInput called %d times, want 1", len(requests))
	}
	var req struct {
		SceneName     string         `json:"sceneName"`
		InputKind     string         `json:"inputKind"`
		InputSettings map[string]any `json:"inputSettings"`
	}
	if err := json.Unmarshal(requests[0], &req); err != nil {
		t.Fatal(err)
	}
	if req.InputKind != KindVideoCapture || req.InputSettings["device_id"] != "/dev/video0" {
		t.Fatalf("unexpected CreateInput payload: %+v", req)
	}
}

func TestEnsureInputConvergesExisting(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("CreateInput", alreadyExists),
		obstest.WithHandler("GetSceneItemList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItems": []any{}}, nil
		}),
		obstest.WithHandler("CreateSceneItem", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItemId": 4}, nil
		}),
		obstest.WithHandler("GetInputSettings", func(_ json.RawMessage) (any, error) {
			return map[string]any{
				"inputKind":     KindVideoCapture,
				"inputSettings": map[string]any{"device_id": "/dev/video9"},
			}, nil
		}),
		obstest.WithHandler("SetInputSettings", succeed),
	)
	p := New(connect(t, server), nil)

	source := Source{Name: "Camera 1", Kind: KindVideoCapture, Settings: map[string]any{"device_id": "/dev/video0"}}
	if err := p.EnsureInput(context.Background(), "Tutorial Recording", source); err != nil {
		t.Fatalf("EnsureInput failed: %v", err)
	}
	if got := len(server.Requests("CreateSceneItem")); got != 1 {
		t.Fatalf("CreateSceneItem called %d times, want 1", got)
	}
	sets := server.Requests("SetInputSettings")
	if len(sets) != 1 {
		t.Fatalf("SetInputSettings called %d times, want 1", len(sets))
	}
	var set struct {
		InputSettings map[string]any `json:"inputSettings"`
	}
	if err := json.Unmarshal(sets[0], &set); err != nil {
		t.Fatal(err)
	}
	if set.InputSettings["device_id"] != "/dev/video0" {
		t.Fatalf("drifted device not converged: %+v", set.InputSettings)
	}
}

func TestEnsureInputSkipsConvergedSettings(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("CreateInput", alreadyExists),
		obstest.WithHandler("GetSceneItemList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItems": []any{
				map[string]any{"sceneItemId": 1, "sourceName": "Camera 1", "inputKind": KindVideoCapture},
			}}, nil
		}),
		obstest.WithHandler("GetInputSettings", func(_ json.RawMessage) (any, error) {
			return map[string]any{
				"inputKind":     KindVideoCapture,
				"inputSettings": map[string]any{"device_id": "/dev/video0"},
			}, nil
		}),
	)
	p := New(connect(t, server), nil)

	source := Source{Name: "Camera 1", Kind: KindVideoCapture, Settings: map[string]any{"device_id": "/dev/video0"}}
	if err := p.EnsureInput(context.Background(), "Tutorial Recording", source); err != nil {
		t.Fatalf("EnsureInput failed: %v", err)
	}
	if got := len(server.Requests("SetInputSettings")); got != 0 {
		t.Fatalf("settings already converged, but SetInputSettings called %d times", got)
	}
	if got := len(server.Requests("CreateSceneItem")); got != 0 {
		t.Fatalf("input already placed, but CreateSceneItem called %d times", got)
	}
}

func TestApplyOrdering(t *testing.T) {
	var order []string
	record := func(name string) obstest.Handler {
		return func(_ json.RawMessage) (any, error) {
			order = append(order, name)
			return nil, nil
		}
	}
	server := obstest.New(t,
		obstest.WithHandler("CreateProfile", record("profile")),
		obstest.WithHandler("GetProfileList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"currentProfileName": "single"}, nil
		}),
		obstest.WithHandler("CreateScene", record("scene")),
		obstest.WithHandler("GetSceneList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"currentProgramSceneName": "Tutorial Recording"}, nil
		}),
		obstest.WithHandler("CreateInput", record("input")),
	)
	p := New(connect(t, server), nil)

	plan := Plan{
		Profile: "single",
		Scene:   "Tutorial Recording",
		Sources: []Source{{Name: "Display 1", Kind: KindDisplayCapture}},
	}
	if err := p.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := []string{"profile", "scene", "input"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPruneRemovesStrayItems(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("GetSceneItemList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItems": []any{
				map[string]any{"sceneItemId": 1, "sourceName": "Camera 1", "inputKind": KindVideoCapture},
				map[string]any{"sceneItemId": 7, "sourceName": "Old Webcam", "inputKind": KindVideoCapture},
			}}, nil
		}),
		obstest.WithHandler("RemoveSceneItem", succeed),
	)
	p := New(connect(t, server), nil)

	plan := Plan{
		Scene:   "Tutorial Recording",
		Sources: []Source{{Name: "Camera 1", Kind: KindVideoCapture}},
	}
	if err := p.Prune(context.Background(), plan); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	removes := server.Requests("RemoveSceneItem")
	if len(removes) != 1 {
		t.Fatalf("RemoveSceneItem called %d times, want 1", len(removes))
	}
	var req struct {
		SceneName   string `json:"sceneName"`
		SceneItemID int    `json:"sceneItemId"`
	}
	if err := json.Unmarshal(removes[0], &req); err != nil {
		t.Fatal(err)
	}
	if req.SceneItemID != 7 || req.SceneName != "Tutorial Recording" {
		t.Fatalf("unexpected remove payload: %+v", req)
	}
}

func TestEnsureFilterReplacesWrongKind(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("GetSourceFilterList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"filters": []any{
				map[string]any{"filterName": ISOFilterName, "filterKind": "color_filter", "filterEnabled": true},
			}}, nil
		}),
		obstest.WithHandler("RemoveSourceFilter", succeed),
		obstest.WithHandler("CreateSourceFilter", succeed),
	)
	p := New(connect(t, server), nil)

	err := p.EnsureFilter(context.Background(), "Camera 1", ISOFilterName, "source_record_filter", map[string]any{"path": "/tmp/iso"})
	if err != nil {
		t.Fatalf("EnsureFilter failed: %v", err)
	}
	if got := len(server.Requests("RemoveSourceFilter")); got != 1 {
		t.Fatalf("RemoveSourceFilter called %d times, want 1", got)
	}
	creates := server.Requests("CreateSourceFilter")
	if len(creates) != 1 {
		t.Fatalf("CreateSourceFilter called %d times, want 1", len(creates))
	}
	var req struct {
		FilterKind string `json:"filterKind"`
	}
	if err := json.Unmarshal(creates[0], &req); err != nil {
		t.Fatal(err)
	}
	if req.FilterKind != "source_record_filter" {
		t.Fatalf("recreated filter kind = %q", req.FilterKind)
	}
}

func TestEnableISORecordingCreatesFilters(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("GetSceneItemList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItems": []any{
				map[string]any{"sceneItemId": 1, "sourceName": "Camera 1", "inputKind": KindVideoCapture},
				map[string]any{"sceneItemId": 2, "sourceName": "Mic 1", "inputKind": KindAudioCapture},
			}}, nil
		}),
		obstest.WithHandler("GetSourceFilterList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"filters": []any{}}, nil
		}),
		obstest.WithHandler("CreateSourceFilter", succeed),
	)
	p := New(connect(t, server), nil)

	if err := p.EnableISORecording(context.Background(), "Tutorial Recording", "/tmp/iso"); err != nil {
		t.Fatalf("EnableISORecording failed: %v", err)
	}
	creates := server.Requests("CreateSourceFilter")
	if len(creates) != 2 {
		t.Fatalf("CreateSourceFilter called %d times, want 2", len(creates))
	}
	var req struct {
		FilterName     string         `json:"filterName"`
		FilterKind     string         `json:"filterKind"`
		FilterSettings map[string]any `json:"filterSettings"`
	}
	if err := json.Unmarshal(creates[0], &req); err != nil {
		t.Fatal(err)
	}
	if req.FilterName != ISOFilterName || req.FilterKind != "source_record_filter" {
		t.Fatalf("unexpected filter payload: %+v", req)
	}
	if req.FilterSettings["path"] != "/tmp/iso" {
		t.Fatalf("filter path = %v", req.FilterSettings["path"])
	}
}

func TestEnableISORecordingConvergesExistingFilter(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("GetSceneItemList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItems": []any{
				map[string]any{"sceneItemId": 1, "sourceName": "Camera 1", "inputKind": KindVideoCapture},
			}}, nil
		}),
		obstest.WithHandler("GetSourceFilterList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"filters": []any{
				map[string]any{"filterName": ISOFilterName, "filterKind": "source_record_filter", "filterEnabled": false},
			}}, nil
		}),
		obstest.WithHandler("SetSourceFilterSettings", succeed),
		obstest.WithHandler("SetSourceFilterEnabled", succeed),
	)
	p := New(connect(t, server), nil)

	if err := p.EnableISORecording(context.Background(), "Tutorial Recording", "/tmp/iso"); err != nil {
		t.Fatalf("EnableISORecording failed: %v", err)
	}
	if got := len(server.Requests("CreateSourceFilter")); got != 0 {
		t.Fatalf("filter exists, but CreateSourceFilter called %d times", got)
	}
	if got := len(server.Requests("SetSourceFilterEnabled")); got != 1 {
		t.Fatalf("SetSourceFilterEnabled called %d times, want 1", got)
	}
}

func TestDisableISORecording(t *testing.T) {
	server := obstest.New(t,
		obstest.WithHandler("GetSceneItemList", func(_ json.RawMessage) (any, error) {
			return map[string]any{"sceneItems": []any{
				map[string]any{"sceneItemId": 1, "sourceName": "Camera 1", "inputKind": KindVideoCapture},
				map[string]any{"sceneItemId": 2, "sourceName": "Display 1", "inputKind": KindDisplayCapture},
			}}, nil
		}),
		obstest.WithHandler("GetSourceFilterList", func(data json.RawMessage) (any, error) {
			var req struct {
				SourceName string `json:"sourceName"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, err
			}
			if req.SourceName == "Camera 1" {
				return map[string]any{"filters": []any{
					map[string]any{"filterName": ISOFilterName, "filterEnabled": true},
				}}, nil
			}
			return map[string]any{"filters": []any{}}, nil
		}),
		obstest.WithHandler("SetSourceFilterEnabled", succeed),
	)
	p := New(connect(t, server), nil)

	if err := p.DisableISORecording(context.Background(), "Tutorial Recording"); err != nil {
		t.Fatalf("DisableISORecording failed: %v", err)
	}
	if got := len(server.Requests("SetSourceFilterEnabled")); got != 1 {
		t.Fatalf("SetSourceFilterEnabled called %d times, want 1", got)
	}
}
