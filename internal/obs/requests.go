package obs

import (
	"context"
	"encoding/json"
	"fmt"
)

// Version describes the server build and protocol revision.
type Version struct {
	OBSVersion          string `json:"obsVersion"`
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Platform            string `json:"platform"`
}

// RecordStatus is the current state of the record output.
type RecordStatus struct {
	OutputActive   bool    `json:"outputActive"`
	OutputPaused   bool    `json:"outputPaused"`
	OutputTimecode string  `json:"outputTimecode"`
	OutputDuration float64 `json:"outputDuration"`
	OutputBytes    int64   `json:"outputBytes"`
}

// Scene is one entry from GetSceneList.
type Scene struct {
	SceneName  string `json:"sceneName"`
	SceneIndex int    `json:"sceneIndex"`
}

// SceneItem is one source placed in a scene.
type SceneItem struct {
	SceneItemID int    `json:"sceneItemId"`
	SourceName  string `json:"sourceName"`
	InputKind   string `json:"inputKind"`
}

// Filter is one source filter attached to an input or scene.
type Filter struct {
	FilterName     string          `json:"filterName"`
	FilterKind     string          `json:"filterKind"`
	FilterEnabled  bool            `json:"filterEnabled"`
	FilterIndex    int             `json:"filterIndex"`
	FilterSettings json.RawMessage `json:"filterSettings"`
}

func call[T any](ctx context.Context, c *Client, requestType string, requestData any) (T, error) {
	var out T
	data, err := c.Call(ctx, requestType, requestData)
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("obs: decode %s response: %w", requestType, err)
	}
	return out, nil
}

// GetVersion fetches server and protocol version information.
func (c *Client) GetVersion(ctx context.Context) (Version, error) {
	return call[Version](ctx, c, "GetVersion", nil)
}

// GetRecordStatus fetches the record output state.
func (c *Client) GetRecordStatus(ctx context.Context) (RecordStatus, error) {
	return call[RecordStatus](ctx, c, "GetRecordStatus", nil)
}

// StartRecord begins recording on the configured record output.
func (c *Client) StartRecord(ctx context.Context) error {
	_, err := c.Call(ctx, "StartRecord", nil)
	return err
}

// StopRecord stops recording and returns the output file path the
// server reports. The path may be empty on older servers.
func (c *Client) StopRecord(ctx context.Context) (string, error) {
	out, err := call[struct {
		OutputPath string `json:"outputPath"`
	}](ctx, c, "StopRecord", nil)
	return out.OutputPath, err
}

// SetRecordDirectory points the record output at a directory.
func (c *Client) SetRecordDirectory(ctx context.Context, dir string) error {
	_, err := c.Call(ctx, "SetRecordDirectory", map[string]any{
		"recordDirectory": dir,
	})
	return err
}

// GetRecordDirectory reports the record output directory.
func (c *Client) GetRecordDirectory(ctx context.Context) (string, error) {
	out, err := call[struct {
		RecordDirectory string `json:"recordDirectory"`
	}](ctx, c, "GetRecordDirectory", nil)
	return out.RecordDirectory, err
}

// GetProfileList returns the available profile names and the current one.
func (c *Client) GetProfileList(ctx context.Context) (current string, profiles []string, err error) {
	out, err := call[struct {
		CurrentProfileName string   `json:"currentProfileName"`
		Profiles           []string `json:"profiles"`
	}](ctx, c, "GetProfileList", nil)
	return out.CurrentProfileName, out.Profiles, err
}

// CreateProfile creates a named profile. Fails with code 601 when the
// profile already exists.
func (c *Client) CreateProfile(ctx context.Context, name string) error {
	_, err := c.Call(ctx, "CreateProfile", map[string]any{"profileName": name})
	return err
}

// SetCurrentProfile switches the active profile.
func (c *Client) SetCurrentProfile(ctx context.Context, name string) error {
	_, err := c.Call(ctx, "SetCurrentProfile", map[string]any{"profileName": name})
	return err
}

// GetSceneList returns all scenes and the current program scene.
func (c *Client) GetSceneList(ctx context.Context) (current string, scenes []Scene, err error) {
	out, err := call[struct {
		CurrentProgramSceneName string  `json:"currentProgramSceneName"`
		Scenes                  []Scene `json:"scenes"`
	}](ctx, c, "GetSceneList", nil)
	return out.CurrentProgramSceneName, out.Scenes, err
}

// CreateScene creates a named scene. Fails with code 601 when the
// scene already exists.
func (c *Client) CreateScene(ctx context.Context, name string) error {
	_, err := c.Call(ctx, "CreateScene", map[string]any{"sceneName": name})
	return err
}

// SetCurrentProgramScene switches the program output to a scene.
func (c *Client) SetCurrentProgramScene(ctx context.Context, name string) error {
	_, err := c.Call(ctx, "SetCurrentProgramScene", map[string]any{"sceneName": name})
	return err
}

// GetSceneItemList lists the sources placed in a scene.
func (c *Client) GetSceneItemList(ctx context.Context, sceneName string) ([]SceneItem, error) {
	out, err := call[struct {
		SceneItems []SceneItem `json:"sceneItems"`
	}](ctx, c, "GetSceneItemList", map[string]any{"sceneName": sceneName})
	return out.SceneItems, err
}

// CreateSceneItem places an existing input into a scene.
func (c *Client) CreateSceneItem(ctx context.Context, sceneName, sourceName string) (int, error) {
	out, err := call[struct {
		SceneItemID int `json:"sceneItemId"`
	}](ctx, c, "CreateSceneItem", map[string]any{
		"sceneName":  sceneName,
		"sourceName": sourceName,
	})
	return out.SceneItemID, err
}

// RemoveSceneItem removes one placed source from a scene.
func (c *Client) RemoveSceneItem(ctx context.Context, sceneName string, sceneItemID int) error {
	_, err := c.Call(ctx, "RemoveSceneItem", map[string]any{
		"sceneName":   sceneName,
		"sceneItemId": sceneItemID,
	})
	return err
}

// CreateInput creates an input of the given kind inside a scene. Fails
// with code 601 when an input with that name already exists.
func (c *Client) CreateInput(ctx context.Context, sceneName, inputName, inputKind string, settings map[string]any) error {
	_, err := c.Call(ctx, "CreateInput", map[string]any{
		"sceneName":     sceneName,
		"inputName":     inputName,
		"inputKind":     inputKind,
		"inputSettings": settings,
	})
	return err
}

// GetInputSettings returns an input's settings and kind.
func (c *Client) GetInputSettings(ctx context.Context, inputName string) (map[string]any, string, error) {
	out, err := call[struct {
		InputSettings map[string]any `json:"inputSettings"`
		InputKind     string         `json:"inputKind"`
	}](ctx, c, "GetInputSettings", map[string]any{"inputName": inputName})
	return out.InputSettings, out.InputKind, err
}

// SetInputSettings overlays settings onto an input.
func (c *Client) SetInputSettings(ctx context.Context, inputName string, settings map[string]any) error {
	_, err := c.Call(ctx, "SetInputSettings", map[string]any{
		"inputName":     inputName,
		"inputSettings": settings,
		"overlay":       true,
	})
	return err
}

// GetSourceFilterList lists the filters attached to a source.
func (c *Client) GetSourceFilterList(ctx context.Context, sourceName string) ([]Filter, error) {
	out, err := call[struct {
		Filters []Filter `json:"filters"`
	}](ctx, c, "GetSourceFilterList", map[string]any{"sourceName": sourceName})
	return out.Filters, err
}

// CreateSourceFilter attaches a new filter to a source.
func (c *Client) CreateSourceFilter(ctx context.Context, sourceName, filterName, filterKind string, settings map[string]any) error {
	_, err := c.Call(ctx, "CreateSourceFilter", map[string]any{
		"sourceName":     sourceName,
		"filterName":     filterName,
		"filterKind":     filterKind,
		"filterSettings": settings,
	})
	return err
}

// SetSourceFilterSettings overlays settings onto an existing filter.
func (c *Client) SetSourceFilterSettings(ctx context.Context, sourceName, filterName string, settings map[string]any) error {
	_, err := c.Call(ctx, "SetSourceFilterSettings", map[string]any{
		"sourceName":     sourceName,
		"filterName":     filterName,
		"filterSettings": settings,
	})
	return err
}

// SetSourceFilterEnabled toggles a filter without touching settings.
func (c *Client) SetSourceFilterEnabled(ctx context.Context, sourceName, filterName string, enabled bool) error {
	_, err := c.Call(ctx, "SetSourceFilterEnabled", map[string]any{
		"sourceName":    sourceName,
		"filterName":    filterName,
		"filterEnabled": enabled,
	})
	return err
}

// RemoveSourceFilter detaches a filter from a source.
func (c *Client) RemoveSourceFilter(ctx context.Context, sourceName, filterName string) error {
	_, err := c.Call(ctx, "RemoveSourceFilter", map[string]any{
		"sourceName": sourceName,
		"filterName": filterName,
	})
	return err
}
