package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"clay/internal/autologin"
	"clay/internal/config"
	"clay/internal/keepalive"
	"clay/internal/pause"
	"clay/internal/tlsproxy"
	"clay/internal/transport"
	"clay/internal/trigger"
	"clay/internal/world"
)

// eventQueueCapacity is the buffer size of the orchestrator's event
// channel. It only needs to absorb a short burst - the orchestrator
// drains it continuously - so a generous but bounded size is enough; an
// unbounded backlog here would just hide a stuck consumer.
const eventQueueCapacity = 256

// Orchestrator is the event loop described in §4.7: the sole mutator of
// the world map. Every other task - per-world readers and writers, the
// local terminal input loop, the WebSocket hub, the ~1Hz ticker, and the
// signal handler - only ever calls Submit.
type Orchestrator struct {
	logger *slog.Logger
	now    func() time.Time

	settings     config.Settings
	settingsPath string

	worlds map[string]*world.World
	order  []string // insertion order, for /worlds and alphabetical fallback
	current string

	pauseCtrls map[string]*pause.Controller
	sinks      map[string]*cmdQueue
	streams    map[string]*transport.Stream
	keepalives map[string]*keepalive.Scheduler
	autologins map[string]*autologin.Machine
	proxies    map[string]*tlsproxy.Handle
	logs       map[string]*logSink

	actions []*trigger.CompiledAction

	broadcaster Broadcaster

	sizeMu       sync.RWMutex
	outputWidth  int
	outputHeight int

	term string

	events chan Event

	lastCtrlC time.Time
	prevWorld string

	quitOnce sync.Once
	quitCh   chan struct{}

	wg sync.WaitGroup
}

// New builds an orchestrator from loaded settings. It does not connect
// any world; callers drive that explicitly (e.g. from cmd/clay/main.go,
// one Connect call per configured world, or via reload restoration).
func New(settings config.Settings, settingsPath string, logger *slog.Logger, now func() time.Time) (*Orchestrator, error) {
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		logger:       logger,
		now:          now,
		settings:     settings,
		settingsPath: settingsPath,
		worlds:       make(map[string]*world.World),
		pauseCtrls:   make(map[string]*pause.Controller),
		sinks:        make(map[string]*cmdQueue),
		streams:      make(map[string]*transport.Stream),
		keepalives:   make(map[string]*keepalive.Scheduler),
		autologins:   make(map[string]*autologin.Machine),
		proxies:      make(map[string]*tlsproxy.Handle),
		logs:         make(map[string]*logSink),
		broadcaster:  noopBroadcaster{},
		outputWidth:  80,
		outputHeight: 24,
		events:       make(chan Event, eventQueueCapacity),
		quitCh:       make(chan struct{}),
		term:         os.Getenv("TERM"),
	}
	if err := o.compileActions(); err != nil {
		return nil, err
	}
	for _, ws := range settings.Worlds {
		o.addWorld(ws)
	}
	if len(o.order) > 0 {
		o.current = o.order[0]
		o.worlds[o.current].SetCurrent(true)
	}
	return o, nil
}

func (o *Orchestrator) compileActions() error {
	o.actions = o.actions[:0]
	for _, a := range o.settings.Actions {
		compiled, err := trigger.Compile(a)
		if err != nil {
			return err
		}
		o.actions = append(o.actions, compiled)
	}
	return nil
}

func (o *Orchestrator) addWorld(ws config.WorldSettings) *world.World {
	w := world.New(ws)
	o.worlds[ws.Name] = w
	o.order = append(o.order, ws.Name)
	o.pauseCtrls[ws.Name] = pause.New(o.settings.MoreModeDefault, o.outputHeight)
	return w
}

// SetBroadcaster attaches the WebSocket fanout target. Must be called
// before Run, from the same goroutine that constructed the Orchestrator.
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = noopBroadcaster{}
	}
	o.broadcaster = b
}

// Submit enqueues an event for the orchestrator to process. Safe to call
// from any goroutine; this is the only way a producer may interact with
// the orchestrator.
func (o *Orchestrator) Submit(ev Event) {
	o.events <- ev
}

// Size returns the terminal dimensions last set via SetSize, used to
// answer Telnet NAWS requests. Safe for concurrent use by reader tasks.
func (o *Orchestrator) Size() (width, height int) {
	o.sizeMu.RLock()
	defer o.sizeMu.RUnlock()
	return o.outputWidth, o.outputHeight
}

// SetSize updates the terminal dimensions on a resize; it also adjusts
// every world's pause threshold (§4.5 ties the threshold to output
// height).
func (o *Orchestrator) SetSize(width, height int) {
	o.sizeMu.Lock()
	o.outputWidth, o.outputHeight = width, height
	o.sizeMu.Unlock()
	for _, c := range o.pauseCtrls {
		c.SetOutputHeight(height)
	}
}

// Run drains the event channel until ctx is cancelled or a Quit signal
// is processed. It is meant to run on its own goroutine (or be the main
// goroutine); nothing else may read from o.events.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.quitCh:
			return
		case ev := <-o.events:
			o.dispatch(ev)
		}
	}
}

// Done reports when the orchestrator has processed a Quit signal.
func (o *Orchestrator) Done() <-chan struct{} { return o.quitCh }

func (o *Orchestrator) dispatch(ev Event) {
	switch e := ev.(type) {
	case ServerDataEvent:
		o.handleServerData(e)
	case ConnectedEvent:
		o.handleConnected(e)
	case ConnectFailedEvent:
		o.handleConnectFailed(e)
	case DisconnectedEvent:
		o.handleDisconnected(e)
	case AutoLoginFireEvent:
		o.handleAutoLoginFire(e)
	case UserInputEvent:
		o.handleUserInput(e)
	case RemoteCommandEvent:
		o.handleRemoteCommand(e)
	case TickEvent:
		o.handleTick(e)
	case SignalEvent:
		o.handleSignal(e)
	case LogNoticeEvent:
		o.appendDiagnostic(o.current, e.Text)
	default:
		o.logger.Warn("orchestrator: unhandled event type")
	}
}

// WorldNames returns world names sorted alphabetically, for /worlds and
// the alphabetical fallback in the world-switch policy (§6).
func (o *Orchestrator) WorldNames() []string {
	names := make([]string, len(o.order))
	copy(names, o.order)
	sort.Strings(names)
	return names
}

// World looks up a world by its exact settings name.
func (o *Orchestrator) World(name string) (*world.World, bool) {
	w, ok := o.worlds[name]
	return w, ok
}

// CurrentWorld returns the name of the world currently shown locally.
func (o *Orchestrator) CurrentWorld() string { return o.current }

// knownAction reports whether name is a defined action, for
// command.Parse's manual-invocation fallback.
func (o *Orchestrator) knownAction(name string) bool {
	for _, a := range o.actions {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (o *Orchestrator) findAction(name string) (config.Action, bool) {
	for _, a := range o.actions {
		if a.Name == name {
			return a.Action, true
		}
	}
	return config.Action{}, false
}
