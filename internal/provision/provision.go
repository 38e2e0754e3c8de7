// Package provision converges an OBS instance toward a desired
// profile, scene, input, and filter layout. Every operation is
// idempotent: a resource that already exists is converged in place,
// never treated as an error.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/obs"
)

// Input kinds for the capture sources the planner emits.
const (
	KindDisplayCapture = "xshm_input"
	KindVideoCapture   = "v4l2_input"
	KindAudioCapture   = "pulse_input_capture"
)

// ISOFilterName is the per-source record filter used for isolated
// recordings.
const ISOFilterName = "ISO Record"

const isoFilterKind = "source_record_filter"

// Source is one input to ensure inside the scene.
type Source struct {
	Name     string
	Kind     string
	Settings map[string]any
}

// Plan is the full desired layout for one session.
type Plan struct {
	Profile string
	Scene   string
	Sources []Source
}

// Bindings maps source names to capture device identifiers discovered
// on the host. Sources without a binding are created with default
// settings and converged later.
type Bindings struct {
	Video map[string]string
	Audio map[string]string
}

// PlanFromProfile expands a configured profile into the concrete
// source list for a scene.
func PlanFromProfile(profileName, sceneName string, profile config.Profile, bindings Bindings) Plan {
	plan := Plan{Profile: profileName, Scene: sceneName}
	for i := 0; i < profile.Displays; i++ {
		plan.Sources = append(plan.Sources, Source{
			Name:     fmt.Sprintf("Display %d", i+1),
			Kind:     KindDisplayCapture,
			Settings: map[string]any{"screen": i},
		})
	}
	for _, name := range profile.Cameras {
		settings := map[string]any{}
		if device, ok := bindings.Video[name]; ok {
			settings["device_id"] = device
		}
		plan.Sources = append(plan.Sources, Source{Name: name, Kind: KindVideoCapture, Settings: settings})
	}
	for _, name := range profile.AudioInputs {
		settings := map[string]any{}
		if device, ok := bindings.Audio[name]; ok {
			settings["device_id"] = device
		}
		plan.Sources = append(plan.Sources, Source{Name: name, Kind: KindAudioCapture, Settings: settings})
	}
	return plan
}

// Provisioner executes plans against a connected client.
type Provisioner struct {
	client *obs.Client
	logger *slog.Logger
}

// New builds a Provisioner. A nil logger disables logging.
func New(client *obs.Client, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provisioner{client: client, logger: logger}
}

// Apply converges the instance to the plan: profile, then scene, then
// each source, each as its own correlated request.
func (p *Provisioner) Apply(ctx context.Context, plan Plan) error {
	if plan.Profile != "" {
		if err := p.EnsureProfile(ctx, plan.Profile); err != nil {
			return err
		}
	}
	if err := p.EnsureScene(ctx, plan.Scene); err != nil {
		return err
	}
	for _, source := range plan.Sources {
		if err := p.EnsureInput(ctx, plan.Scene, source); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes scene items the plan does not name, so an explicit
// layout convergence also covers sources that were renamed or dropped
// from the profile.
func (p *Provisioner) Prune(ctx context.Context, plan Plan) error {
	items, err := p.client.GetSceneItemList(ctx, plan.Scene)
	if err != nil {
		return fmt.Errorf("prune scene %s: %w", plan.Scene, err)
	}
	keep := make(map[string]struct{}, len(plan.Sources))
	for _, source := range plan.Sources {
		keep[source.Name] = struct{}{}
	}
	for _, item := range items {
		if _, ok := keep[item.SourceName]; ok {
			continue
		}
		if err := p.client.RemoveSceneItem(ctx, plan.Scene, item.SceneItemID); err != nil {
			return fmt.Errorf("prune %s from %s: %w", item.SourceName, plan.Scene, err)
		}
		p.logger.Info("removed stray scene item",
			logging.String("scene", plan.Scene),
			logging.String("source", item.SourceName))
	}
	return nil
}

// EnsureProfile creates the profile when missing and switches to it.
func (p *Provisioner) EnsureProfile(ctx context.Context, name string) error {
	err := p.client.CreateProfile(ctx, name)
	switch {
	case err == nil:
		p.logger.Info("created profile", logging.String("profile", name))
	case isAlreadyExists(err):
		p.logger.Debug("profile present", logging.String("profile", name))
	default:
		return fmt.Errorf("ensure profile %s: %w", name, err)
	}

	current, _, err := p.client.GetProfileList(ctx)
	if err != nil {
		return fmt.Errorf("ensure profile %s: %w", name, err)
	}
	if current == name {
		return nil
	}
	if err := p.client.SetCurrentProfile(ctx, name); err != nil {
		return fmt.Errorf("switch profile to %s: %w", name, err)
	}
	return nil
}

// EnsureScene creates the scene when missing and makes it the program
// scene.
func (p *Provisioner) EnsureScene(ctx context.Context, name string) error {
	err := p.client.CreateScene(ctx, name)
	switch {
	case err == nil:
		p.logger.Info("created scene", logging.String("scene", name))
	case isAlreadyExists(err):
		p.logger.Debug("scene present", logging.String("scene", name))
	default:
		return fmt.Errorf("ensure scene %s: %w", name, err)
	}

	current, _, err := p.client.GetSceneList(ctx)
	if err != nil {
		return fmt.Errorf("ensure scene %s: %w", name, err)
	}
	if current == name {
		return nil
	}
	if err := p.client.SetCurrentProgramScene(ctx, name); err != nil {
		return fmt.Errorf("switch scene to %s: %w", name, err)
	}
	return nil
}

// EnsureInput creates the input inside the scene. When the input
// already exists it is placed into the scene if absent and its
// settings are converged to the desired values.
func (p *Provisioner) EnsureInput(ctx context.Context, sceneName string, source Source) error {
	err := p.client.CreateInput(ctx, sceneName, source.Name, source.Kind, source.Settings)
	if err == nil {
		p.logger.Info("created input",
			logging.String("input", source.Name),
			logging.String("kind", source.Kind))
		return nil
	}
	if !isAlreadyExists(err) {
		return fmt.Errorf("ensure input %s: %w", source.Name, err)
	}

	placed, err := p.inputPlacedInScene(ctx, sceneName, source.Name)
	if err != nil {
		return fmt.Errorf("ensure input %s: %w", source.Name, err)
	}
	if !placed {
		if _, err := p.client.CreateSceneItem(ctx, sceneName, source.Name); err != nil {
			return fmt.Errorf("place input %s in %s: %w", source.Name, sceneName, err)
		}
		p.logger.Info("placed existing input in scene",
			logging.String("input", source.Name),
			logging.String("scene", sceneName))
	}
	return p.convergeSettings(ctx, source)
}

// convergeSettings rewrites only the settings that drifted from the
// desired values.
func (p *Provisioner) convergeSettings(ctx context.Context, source Source) error {
	if len(source.Settings) == 0 {
		return nil
	}
	current, _, err := p.client.GetInputSettings(ctx, source.Name)
	if err != nil {
		return fmt.Errorf("read settings for %s: %w", source.Name, err)
	}
	drift := map[string]any{}
	for key, want := range source.Settings {
		if got, ok := current[key]; !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			drift[key] = want
		}
	}
	if len(drift) == 0 {
		return nil
	}
	p.logger.Info("converging input settings",
		logging.String("input", source.Name),
		logging.Int("drifted_keys", len(drift)))
	if err := p.client.SetInputSettings(ctx, source.Name, drift); err != nil {
		return fmt.Errorf("converge settings for %s: %w", source.Name, err)
	}
	return nil
}

// EnsureFilter attaches the filter when missing, otherwise converges
// its settings and re-enables it.
func (p *Provisioner) EnsureFilter(ctx context.Context, sourceName, filterName, filterKind string, settings map[string]any) error {
	filters, err := p.client.GetSourceFilterList(ctx, sourceName)
	if err != nil {
		return fmt.Errorf("list filters on %s: %w", sourceName, err)
	}
	for _, filter := range filters {
		if filter.FilterName != filterName {
			continue
		}
		if filter.FilterKind != filterKind {
			// Same name, different kind: settings cannot converge it.
			// Replace the filter wholesale.
			if err := p.client.RemoveSourceFilter(ctx, sourceName, filterName); err != nil {
				return fmt.Errorf("replace filter %s on %s: %w", filterName, sourceName, err)
			}
			p.logger.Info("replaced filter of wrong kind",
				logging.String("source", sourceName),
				logging.String("filter", filterName),
				logging.String("had_kind", filter.FilterKind))
			break
		}
		if err := p.client.SetSourceFilterSettings(ctx, sourceName, filterName, settings); err != nil {
			return fmt.Errorf("converge filter %s on %s: %w", filterName, sourceName, err)
		}
		if !filter.FilterEnabled {
			if err := p.client.SetSourceFilterEnabled(ctx, sourceName, filterName, true); err != nil {
				return fmt.Errorf("enable filter %s on %s: %w", filterName, sourceName, err)
			}
		}
		return nil
	}
	if err := p.client.CreateSourceFilter(ctx, sourceName, filterName, filterKind, settings); err != nil {
		if isAlreadyExists(err) {
			return p.client.SetSourceFilterSettings(ctx, sourceName, filterName, settings)
		}
		return fmt.Errorf("create filter %s on %s: %w", filterName, sourceName, err)
	}
	p.logger.Info("created filter",
		logging.String("source", sourceName),
		logging.String("filter", filterName))
	return nil
}

// EnableISORecording attaches a record filter to every capture source
// in the scene so each source writes its own isolated file under
// outputDir.
func (p *Provisioner) EnableISORecording(ctx context.Context, sceneName, outputDir string) error {
	items, err := p.client.GetSceneItemList(ctx, sceneName)
	if err != nil {
		return fmt.Errorf("enable iso recording: %w", err)
	}
	for _, item := range items {
		settings := map[string]any{
			"record_mode": 3,
			"path":        outputDir,
			"filename":    item.SourceName,
			"rec_format":  "mkv",
		}
		if err := p.EnsureFilter(ctx, item.SourceName, ISOFilterName, isoFilterKind, settings); err != nil {
			return err
		}
	}
	return nil
}

// DisableISORecording switches off the record filter on every source
// in the scene that carries one. Sources without the filter are left
// alone.
func (p *Provisioner) DisableISORecording(ctx context.Context, sceneName string) error {
	items, err := p.client.GetSceneItemList(ctx, sceneName)
	if err != nil {
		return fmt.Errorf("disable iso recording: %w", err)
	}
	for _, item := range items {
		filters, err := p.client.GetSourceFilterList(ctx, item.SourceName)
		if err != nil {
			return fmt.Errorf("disable iso recording on %s: %w", item.SourceName, err)
		}
		for _, filter := range filters {
			if filter.FilterName != ISOFilterName || !filter.FilterEnabled {
				continue
			}
			if err := p.client.SetSourceFilterEnabled(ctx, item.SourceName, ISOFilterName, false); err != nil {
				return fmt.Errorf("disable iso recording on %s: %w", item.SourceName, err)
			}
		}
	}
	return nil
}

func (p *Provisioner) inputPlacedInScene(ctx context.Context, sceneName, inputName string) (bool, error) {
	items, err := p.client.GetSceneItemList(ctx, sceneName)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.SourceName == inputName {
			return true, nil
		}
	}
	return false, nil
}

func isAlreadyExists(err error) bool {
	var reqErr *obs.RequestError
	return errors.As(err, &reqErr) && reqErr.IsAlreadyExists()
}
