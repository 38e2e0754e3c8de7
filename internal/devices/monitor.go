package devices

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"reel/internal/logging"
)

// ChangeHandler is invoked when capture hardware appears or vanishes.
type ChangeHandler func(ctx context.Context, device Device, added bool)

// Monitor listens for udev netlink events on the capture subsystems so
// the daemon can refresh its device inventory on hotplug.
type Monitor struct {
	logger  *slog.Logger
	handler ChangeHandler

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor builds a hotplug monitor. The handler may be nil.
func NewMonitor(logger *slog.Logger, handler ChangeHandler) *Monitor {
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "device-monitor"),
		handler: handler,
	}
}

// Start begins listening for hotplug events. A netlink socket that
// cannot be opened is logged and skipped; enumeration at session start
// still works without hotplug updates.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("hotplug monitoring unavailable", logging.Error(err))
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("device monitor started")
	return nil
}

// Stop shuts the monitor down. Safe to call when never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.logger.Info("device monitor stopped")
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, captureMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("device monitor error", logging.Error(err))
		}
	}
}

// captureMatcher matches add and remove events on the video4linux and
// sound subsystems.
func captureMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": subsystemVideo},
	})
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": subsystemSound},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	subsystem := uevent.Env["SUBSYSTEM"]
	device := deviceFromEvent(uevent, subsystem)
	if device.Name == "" || !isCaptureNode(device, subsystem) {
		return
	}

	added := uevent.Action == netlink.ADD
	m.logger.Info("capture device change",
		logging.String("device", device.Name),
		logging.String("subsystem", subsystem),
		logging.Bool("added", added))

	if m.handler != nil {
		m.handler(ctx, device, added)
	}
}

func deviceFromEvent(uevent netlink.UEvent, subsystem string) Device {
	name := uevent.Env["DEVNAME"]
	if name == "" {
		parts := strings.Split(uevent.KObj, "/")
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
