package reconcile

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	probing "github.com/prometheus-community/pro-bing"
	"github.com/pergus/netbox-zabbix/internal/store"
	"github.com/pergus/netbox-zabbix/internal/zabbix"
	"go.uber.org/zap"
)

// API is the remote monitoring API surface the orchestrator drives.
// *zabbix.Client satisfies it.
type API interface {
	HostGetByName(ctx context.Context, name string) (*zabbix.Host, bool, error)
	HostGetByID(ctx context.Context, hostID string) (*zabbix.Host, bool, error)
	HostInterfaces(ctx context.Context, hostID string) ([]zabbix.RawInterface, error)
	HostCreate(ctx context.Context, params map[string]any) ([]string, error)
	HostUpdate(ctx context.Context, params map[string]any) error
	HostDelete(ctx context.Context, hostID string) error
	HostGroupByName(ctx context.Context, name string) (*zabbix.HostGroup, bool, error)
	HostGroupCreate(ctx context.Context, name string) (string, error)
}

// ConfigStore is the slice of the local store the orchestrator writes to:
// remote ids assigned during creation and linking, plus the group cache.
type ConfigStore interface {
	SetHostID(ctx context.Context, configID int64, hostID string) error
	ClearHostID(ctx context.Context, configID int64) error
	SetInterfaceID(ctx context.Context, interfaceRowID int64, zabbixID int) error
	SaveHostGroup(ctx context.Context, g store.HostGroup) error
}

// Recorder is the audit/changelog sink notified after successful operations.
type Recorder interface {
	RecordEvent(ctx context.Context, object, action, user, requestID string) error
}

// Outcome classifies what a Reconcile call did.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeInSync  Outcome = "in-sync"
)

// CreateResult reports a successful host creation.
type CreateResult struct {
	HostID   string
	Document *HostDocument
}

// UpdateResult carries the pre/post snapshots of an update for audit.
type UpdateResult struct {
	Before           *zabbix.Host
	After            *zabbix.Host
	TemplatesCleared []string
}

// DeleteResult reports a deletion. Found is false when the remote host was
// already absent (informational, not an error). ArchivedName is set on soft
// deletes.
type DeleteResult struct {
	HostID       string
	Found        bool
	ArchivedName string
}

// Orchestrator sequences create/update/delete operations against the remote
// API, handling interface linking after creation and compensating rollback
// on partial failure.
type Orchestrator struct {
	api     API
	store   ConfigStore
	rec     Recorder
	builder *Builder
	cfg     Settings
	logger  *zap.Logger
}

// NewOrchestrator creates a reconciliation orchestrator.
func NewOrchestrator(api API, cs ConfigStore, rec Recorder, cfg Settings, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		api:     api,
		store:   cs,
		rec:     rec,
		builder: NewBuilder(cfg, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

// Reconcile brings a single host configuration in step with Zabbix: creates
// the host when it has no remote id yet, updates it when the comparison
// finds drift, and does nothing when the two documents match.
func (o *Orchestrator) Reconcile(ctx context.Context, hc *store.HostConfig, rules *store.MappingRules, mode CompareMode) (Outcome, error) {
	if hc.HostID == "" {
		if _, err := o.Create(ctx, hc, rules); err != nil {
			return "", err
		}
		return OutcomeCreated, nil
	}

	remote, ok, err := o.api.HostGetByID(ctx, hc.HostID)
	if err != nil {
		return "", &RemoteAPIError{Op: "host.get", Err: err}
	}
	if !ok {
		return "", fmt.Errorf("host %q: remote host %s no longer exists", hc.Name, hc.HostID)
	}

	remoteDoc, err := FromRemote(remote)
	if err != nil {
		return "", fmt.Errorf("host %q: %w", hc.Name, err)
	}
	localDoc, err := o.builder.Build(hc, rules, true, remoteDoc)
	if err != nil {
		return "", err
	}

	diff := CompareDocuments(localDoc, remoteDoc, mode)
	if !diff.Differs {
		return OutcomeInSync, nil
	}
	driftTotal.Inc()
	o.logger.Info("configuration drift detected",
		zap.String("host", hc.Name),
		zap.Any("local_only", diff.LocalOnly),
		zap.Any("remote_only", diff.RemoteOnly),
	)

	if _, err := o.Update(ctx, hc, rules); err != nil {
		return "", err
	}
	return OutcomeUpdated, nil
}

// Preview reports what Reconcile would do without touching the remote host:
// the outcome plus, for an existing host, the computed difference. The local
// payload is still fully built, so configuration errors surface here too.
func (o *Orchestrator) Preview(ctx context.Context, hc *store.HostConfig, rules *store.MappingRules, mode CompareMode) (Outcome, *DiffResult, error) {
	if hc.HostID == "" {
		if _, err := o.builder.Build(hc, rules, false, nil); err != nil {
			return "", nil, err
		}
		return OutcomeCreated, nil, nil
	}

	remote, ok, err := o.api.HostGetByID(ctx, hc.HostID)
	if err != nil {
		return "", nil, &RemoteAPIError{Op: "host.get", Err: err}
	}
	if !ok {
		return "", nil, fmt.Errorf("host %q: remote host %s no longer exists", hc.Name, hc.HostID)
	}

	remoteDoc, err := FromRemote(remote)
	if err != nil {
		return "", nil, fmt.Errorf("host %q: %w", hc.Name, err)
	}
	localDoc, err := o.builder.Build(hc, rules, true, remoteDoc)
	if err != nil {
		return "", nil, err
	}

	diff := CompareDocuments(localDoc, remoteDoc, mode)
	if !diff.Differs {
		return OutcomeInSync, &diff, nil
	}
	return OutcomeUpdated, &diff, nil
}

// Create builds the desired-state payload and creates the host remotely,
// then links the local interface records to their remote ids. Any failure
// after remote creation triggers a best-effort compensating deletion; a
// rollback failure is logged, never surfaced, so the original error remains
// the one reported.
func (o *Orchestrator) Create(ctx context.Context, hc *store.HostConfig, rules *store.MappingRules) (_ *CreateResult, err error) {
	start := time.Now()
	defer func() { observeOp("create", start, err) }()

	requestID := uuid.NewString()

	o.preflight(ctx, hc)

	doc, err := o.builder.Build(hc, rules, false, nil)
	if err != nil {
		return nil, err
	}

	params := doc.CreateParams()
	ids, err := o.api.HostCreate(ctx, params)
	if err != nil {
		return nil, &RemoteAPIError{Op: "host.create", Payload: params, Err: err}
	}
	if len(ids) != 1 {
		return nil, &RemoteAPIError{Op: "host.create", Payload: params, Err: errors.New("no id returned")}
	}
	hostID := ids[0]
	doc.HostID = hostID

	// The host now exists remotely; anything that fails past this point
	// must undo it.
	if err := o.store.SetHostID(ctx, hc.ID, hostID); err != nil {
		o.rollback(ctx, hc, hostID)
		return nil, fmt.Errorf("record host id: %w", err)
	}
	hc.HostID = hostID

	if err := o.linkInterfaces(ctx, hc, hostID); err != nil {
		o.rollback(ctx, hc, hostID)
		return nil, fmt.Errorf("link interfaces: %w", err)
	}

	o.record(ctx, hc.Name, "create", requestID)
	o.logger.Info("host created",
		zap.String("host", hc.Name),
		zap.String("hostid", hostID),
	)
	return &CreateResult{HostID: hostID, Document: doc}, nil
}

// Update fetches the current remote document, rebuilds the payload with
// interface-id recovery, and submits the update. Templates present remotely
// but no longer assigned locally are staged for explicit removal: the API
// applies templates cumulatively, so omission alone does not unlink them.
func (o *Orchestrator) Update(ctx context.Context, hc *store.HostConfig, rules *store.MappingRules) (_ *UpdateResult, err error) {
	start := time.Now()
	defer func() { observeOp("update", start, err) }()

	requestID := uuid.NewString()

	before, ok, err := o.api.HostGetByID(ctx, hc.HostID)
	if err != nil {
		return nil, &RemoteAPIError{Op: "host.get", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("host %q: remote host %s no longer exists", hc.Name, hc.HostID)
	}

	previous, err := FromRemote(before)
	if err != nil {
		return nil, fmt.Errorf("host %q: %w", hc.Name, err)
	}

	doc, err := o.builder.Build(hc, rules, true, previous)
	if err != nil {
		return nil, err
	}

	params := doc.UpdateParams()

	local := map[string]bool{}
	for _, t := range doc.Templates {
		local[t.TemplateID] = true
	}
	var cleared []string
	var clearParams []map[string]string
	for _, t := range previous.Templates {
		if !local[t.TemplateID] {
			cleared = append(cleared, t.TemplateID)
			clearParams = append(clearParams, map[string]string{"templateid": t.TemplateID})
		}
	}
	if len(clearParams) > 0 {
		params["templates_clear"] = clearParams
	}

	if err := o.api.HostUpdate(ctx, params); err != nil {
		return nil, &RemoteAPIError{Op: "host.update", Payload: params, Err: err}
	}

	after, _, err := o.api.HostGetByID(ctx, hc.HostID)
	if err != nil {
		return nil, &RemoteAPIError{Op: "host.get", Err: err}
	}

	o.record(ctx, hc.Name, "update", requestID)
	o.logger.Info("host updated",
		zap.String("host", hc.Name),
		zap.String("hostid", hc.HostID),
		zap.Strings("templates_cleared", cleared),
	)
	return &UpdateResult{Before: before, After: after, TemplatesCleared: cleared}, nil
}

// Delete removes the remote host. With soft=false the host is deleted
// permanently; an already-absent host is reported as a non-fatal outcome.
// With soft=true the host is archived instead: renamed with the configured
// suffix (probing for name collisions), disabled, and moved into the
// graveyard group in a single update.
func (o *Orchestrator) Delete(ctx context.Context, hc *store.HostConfig, soft bool) (_ *DeleteResult, err error) {
	op := "delete"
	if soft {
		op = "archive"
	}
	start := time.Now()
	defer func() { observeOp(op, start, err) }()

	requestID := uuid.NewString()

	host, ok, err := o.api.HostGetByID(ctx, hc.HostID)
	if err != nil {
		return nil, &RemoteAPIError{Op: "host.get", Err: err}
	}
	if !ok {
		o.logger.Info("remote host already absent",
			zap.String("host", hc.Name),
			zap.String("hostid", hc.HostID),
		)
		return &DeleteResult{HostID: hc.HostID, Found: false}, nil
	}

	if !soft {
		if err := o.api.HostDelete(ctx, hc.HostID); err != nil {
			if zabbix.IsNotFound(err) {
				return &DeleteResult{HostID: hc.HostID, Found: false}, nil
			}
			return nil, &RemoteAPIError{Op: "host.delete", Err: err}
		}
		if err := o.store.ClearHostID(ctx, hc.ID); err != nil {
			return nil, fmt.Errorf("clear host id: %w", err)
		}
		o.record(ctx, hc.Name, "delete", requestID)
		o.logger.Info("host deleted", zap.String("host", hc.Name), zap.String("hostid", hc.HostID))
		return &DeleteResult{HostID: hc.HostID, Found: true}, nil
	}

	archived, err := o.archiveName(ctx, host.Host)
	if err != nil {
		return nil, err
	}

	groupID, err := o.ensureGraveyard(ctx)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"hostid": hc.HostID,
		"host":   archived,
		"status": "1",
		"groups": []map[string]string{{"groupid": groupID}},
	}
	if err := o.api.HostUpdate(ctx, params); err != nil {
		return nil, &RemoteAPIError{Op: "host.update", Payload: params, Err: err}
	}

	o.record(ctx, hc.Name, "archive", requestID)
	o.logger.Info("host archived",
		zap.String("host", hc.Name),
		zap.String("archived_name", archived),
	)
	return &DeleteResult{HostID: hc.HostID, Found: true, ArchivedName: archived}, nil
}

// archiveName appends the archive suffix and probes for collisions,
// incrementing a numeric suffix until an unused name is found.
func (o *Orchestrator) archiveName(ctx context.Context, name string) (string, error) {
	base := name + o.cfg.ArchiveSuffix
	candidate := base
	for i := 1; ; i++ {
		_, exists, err := o.api.HostGetByName(ctx, candidate)
		if err != nil {
			return "", &RemoteAPIError{Op: "host.get", Err: err}
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// ensureGraveyard looks up the configured graveyard group, creating it
// remotely if absent, and refreshes the local group cache.
func (o *Orchestrator) ensureGraveyard(ctx context.Context) (string, error) {
	g, ok, err := o.api.HostGroupByName(ctx, o.cfg.GraveyardGroup)
	if err != nil {
		return "", &RemoteAPIError{Op: "hostgroup.get", Err: err}
	}
	if ok {
		return g.GroupID, nil
	}

	groupID, err := o.api.HostGroupCreate(ctx, o.cfg.GraveyardGroup)
	if err != nil {
		return "", &RemoteAPIError{Op: "hostgroup.create", Err: err}
	}
	if err := o.store.SaveHostGroup(ctx, store.HostGroup{Name: o.cfg.GraveyardGroup, GroupID: groupID}); err != nil {
		return "", fmt.Errorf("cache graveyard group: %w", err)
	}
	o.logger.Info("graveyard group created",
		zap.String("group", o.cfg.GraveyardGroup),
		zap.String("groupid", groupID),
	)
	return groupID, nil
}

// linkInterfaces fetches the freshly created host's interfaces and writes the
// assigned remote ids back to the local records. Matching is by address and
// type; when no exact match exists but exactly one remote interface does, it
// is linked by elimination.
func (o *Orchestrator) linkInterfaces(ctx context.Context, hc *store.HostConfig, hostID string) error {
	raws, err := o.api.HostInterfaces(ctx, hostID)
	if err != nil {
		return &RemoteAPIError{Op: "hostinterface.get", Err: err}
	}

	remote := make([]InterfaceRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := NormalizeInterface(raw)
		if err != nil {
			return err
		}
		remote = append(remote, *rec)
	}

	// A remote interface links at most once; a candidate claimed by an
	// earlier record leaves the pool.
	used := make([]bool, len(remote))

	for i := range hc.Interfaces {
		local := &hc.Interfaces[i]
		if local.InterfaceID != 0 {
			continue
		}

		rec, err := o.builder.buildInterface(hc, local)
		if err != nil {
			return err
		}

		var matches []int
		for j := range remote {
			if used[j] {
				continue
			}
			if remote[j].Type == rec.Type && remote[j].Address() == rec.Address() {
				matches = append(matches, j)
			}
		}

		var pick int
		switch {
		case len(matches) == 1:
			pick = matches[0]
		case len(matches) == 0 && len(remote) == 1 && !used[0]:
			// No exact match, but only one remote interface exists: link by
			// elimination.
			pick = 0
		default:
			return &LinkAmbiguityError{HostID: hostID, Candidates: remote}
		}
		used[pick] = true

		if err := o.store.SetInterfaceID(ctx, local.ID, remote[pick].InterfaceID); err != nil {
			return fmt.Errorf("record interface id: %w", err)
		}
		local.InterfaceID = remote[pick].InterfaceID
	}

	return nil
}

// rollback undoes a partially provisioned host: the remote object is deleted
// and the locally recorded host id is cleared, so a later run starts from a
// clean slate instead of chasing a dead host. Errors are swallowed so the
// original failure stays the one surfaced to the caller.
func (o *Orchestrator) rollback(ctx context.Context, hc *store.HostConfig, hostID string) {
	rollbacksTotal.Inc()

	if err := o.store.ClearHostID(ctx, hc.ID); err != nil {
		o.logger.Warn("rollback host id clear failed",
			zap.String("host", hc.Name),
			zap.Error(err),
		)
	} else {
		hc.HostID = ""
	}

	if err := o.api.HostDelete(ctx, hostID); err != nil {
		o.logger.Warn("rollback deletion failed",
			zap.String("host", hc.Name),
			zap.String("hostid", hostID),
			zap.Error(err),
		)
		return
	}
	o.logger.Info("rolled back partially created host",
		zap.String("host", hc.Name),
		zap.String("hostid", hostID),
	)
}

// record notifies the audit sink. A sink failure never undoes a completed
// remote operation; it is logged and dropped.
func (o *Orchestrator) record(ctx context.Context, object, action, requestID string) {
	if o.rec == nil {
		return
	}
	if err := o.rec.RecordEvent(ctx, object, action, o.cfg.Actor, requestID); err != nil {
		o.logger.Warn("audit record failed",
			zap.String("object", object),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// preflight probes the host's address before creation when enabled. An
// unreachable host is worth a warning but must not block provisioning:
// agents are often installed after registration.
func (o *Orchestrator) preflight(ctx context.Context, hc *store.HostConfig) {
	if !o.cfg.PreflightPing {
		return
	}
	addr := hc.PrimaryIP
	if addr == "" && len(hc.Interfaces) > 0 {
		addr = hc.Interfaces[0].Address
	}
	if addr == "" {
		return
	}

	pinger, err := probing.NewPinger(addr)
	if err != nil {
		o.logger.Warn("preflight pinger setup failed", zap.String("addr", addr), zap.Error(err))
		return
	}
	pinger.Count = 1
	pinger.Timeout = o.cfg.PingTimeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	if err := pinger.RunWithContext(ctx); err != nil {
		o.logger.Warn("preflight ping failed", zap.String("addr", addr), zap.Error(err))
		return
	}
	if pinger.Statistics().PacketsRecv == 0 {
		o.logger.Warn("host unreachable before creation",
			zap.String("host", hc.Name),
			zap.String("addr", addr),
		)
	}
}
