// Package devices enumerates capture hardware (cameras and audio
// inputs) through udev and binds configured source names to concrete
// device identifiers for provisioning.
package devices

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"

	"reel/internal/config"
	"reel/internal/provision"
)

const (
	subsystemVideo = "video4linux"
	subsystemSound = "sound"
)

// settleWindow is how long the sysfs crawl may stay quiet before the
// enumeration is considered complete. The crawler does not signal
// completion.
const settleWindow = 500 * time.Millisecond

// Device is one capture device discovered via udev.
type Device struct {
	// Name is the kernel object name (video0, pcmC1D0c).
	Name string

	// Path is the device node (/dev/video0) when the event carries
	// one, otherwise empty.
	Path string

	Subsystem string
}

// Inventory is the capture hardware present on the host.
type Inventory struct {
	Video []Device
	Audio []Device
}

// Enumerate crawls sysfs for video4linux and sound capture devices.
// Results are sorted by kernel name so bindings are stable across
// runs.
func Enumerate(ctx context.Context) (*Inventory, error) {
	inventory := &Inventory{}

	for _, subsystem := range []string{subsystemVideo, subsystemSound} {
		found, err := crawlSubsystem(ctx, subsystem)
		if err != nil {
			return nil, err
		}
		switch subsystem {
		case subsystemVideo:
			inventory.Video = found
		case subsystemSound:
			inventory.Audio = found
		}
	}
	return inventory, nil
}

func crawlSubsystem(ctx context.Context, subsystem string) ([]Device, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error)
	quit := crawler.ExistingDevices(queue, errs, subsystemMatcher(subsystem))
	defer close(quit)

	seen := map[string]Device{}
	timer := time.NewTimer(settleWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-errs:
			return nil, err
		case dev := <-queue:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(settleWindow)
			device := deviceFromCrawl(dev, subsystem)
			if device.Name != "" && isCaptureNode(device, subsystem) {
				seen[device.Name] = device
			}
		case <-timer.C:
			devices := make([]Device, 0, len(seen))
			for _, device := range seen {
				devices = append(devices, device)
			}
			sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
			return devices, nil
		}
	}
}

func subsystemMatcher(subsystem string) netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"SUBSYSTEM": subsystem},
	})
	return rules
}

func deviceFromCrawl(dev crawler.Device, subsystem string) Device {
	name := dev.Env["DEVNAME"]
	if name == "" {
		parts := strings.Split(dev.KObj, "/")
		name = parts[len(parts)-1]
	}
	device := Device{Subsystem: subsystem}
	if strings.HasPrefix(name, "/dev/") {
		device.Path = name
		device.Name = strings.TrimPrefix(name, "/dev/")
	} else {
		device.Name = name
	}
	return device
}

// isCaptureNode filters the crawl down to usable capture endpoints:
// /dev/videoN nodes and ALSA capture PCM streams (pcm*c).
func isCaptureNode(device Device, subsystem string) bool {
	switch subsystem {
	case subsystemVideo:
		return strings.HasPrefix(device.Name, "video")
	case subsystemSound:
		return strings.HasPrefix(device.Name, "pcm") && strings.HasSuffix(device.Name, "c")
	default:
		return false
	}
}

// Bind assigns discovered devices to the profile's configured source
// names in order: the first camera gets the first video device, and so
// on. Sources beyond the available hardware stay unbound; provisioning
// creates them with default settings.
func (inv *Inventory) Bind(profile config.Profile) provision.Bindings {
	bindings := provision.Bindings{
		Video: map[string]string{},
		Audio: map[string]string{},
	}
	for i, name := range profile.Cameras {
		if i >= len(inv.Video) {
			break
		}
		bindings.Video[name] = inv.Video[i].identifier()
	}
	for i, name := range profile.AudioInputs {
		if i >= len(inv.Audio) {
			break
		}
		bindings.Audio[name] = inv.Audio[i].identifier()
	}
	return bindings
}

func (d Device) identifier() string {
	if d.Path != "" {
		return d.Path
	}
	return d.Name
}
