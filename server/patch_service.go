package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/patchstore"
	"github.com/chazu/hotpatch/patchwire"
)

// PatchServiceName is the fully-qualified name of the control service.
const PatchServiceName = "hotpatch.v1.PatchService"

// Procedure paths for the control service.
const (
	PatchServiceInstallProcedure   = "/" + PatchServiceName + "/Install"
	PatchServiceUninstallProcedure = "/" + PatchServiceName + "/Uninstall"
	PatchServiceListProcedure      = "/" + PatchServiceName + "/List"
	PatchServiceStatsProcedure     = "/" + PatchServiceName + "/Stats"
)

// PatchService implements the control procedures on top of an engine and
// an optional journal.
type PatchService struct {
	engine *dispatch.Engine
	store  *patchstore.Store
}

// NewPatchService creates a PatchService. store may be nil, in which case
// nothing is journaled.
func NewPatchService(engine *dispatch.Engine, store *patchstore.Store) *PatchService {
	return &PatchService{engine: engine, store: store}
}

// NewPatchServiceHandler builds an HTTP handler serving every procedure of
// svc and returns the path prefix to mount it on.
func NewPatchServiceHandler(svc *PatchService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(patchwire.Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(PatchServiceInstallProcedure, connect.NewUnaryHandler(PatchServiceInstallProcedure, svc.Install, opts...))
	mux.Handle(PatchServiceUninstallProcedure, connect.NewUnaryHandler(PatchServiceUninstallProcedure, svc.Uninstall, opts...))
	mux.Handle(PatchServiceListProcedure, connect.NewUnaryHandler(PatchServiceListProcedure, svc.List, opts...))
	mux.Handle(PatchServiceStatsProcedure, connect.NewUnaryHandler(PatchServiceStatsProcedure, svc.Stats, opts...))
	return "/" + PatchServiceName + "/", mux
}

// Install installs the requested value patch and journals it when the
// phase is persistent and a store is attached.
func (s *PatchService) Install(
	ctx context.Context,
	req *connect.Request[patchwire.InstallRequest],
) (*connect.Response[patchwire.InstallResponse], error) {
	p := req.Msg.Patch
	if err := p.Validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	phase, _ := p.ParsedPhase()
	p.Phase = phase.String()

	w, err := p.Wrapper()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	hash, err := p.Hash()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if err := s.engine.InstallWrapper(p.Namespace, p.Method, w, phase); err != nil {
		return nil, installError(err)
	}

	resp := &patchwire.InstallResponse{Hash: hash}
	if s.store != nil && phase.Persistent() {
		if _, err := s.store.Save(ctx, p); err != nil {
			s.engine.UninstallWrapper(p.Namespace, p.Method, phase)
			log.Errorf("journaling %s: %v", p.String(), err)
			return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("journaling %s: %w", p.String(), err))
		}
		resp.Persisted = true
	}
	log.Infof("installed %s (persisted=%t)", p.String(), resp.Persisted)
	return connect.NewResponse(resp), nil
}

func installError(err error) error {
	var cfgErr *dispatch.ConfigurationError
	switch {
	case errors.Is(err, dispatch.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.As(err, &cfgErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// Uninstall removes the wrapper and its journal entry. It fails with
// CodeNotFound when neither existed.
func (s *PatchService) Uninstall(
	ctx context.Context,
	req *connect.Request[patchwire.UninstallRequest],
) (*connect.Response[patchwire.UninstallResponse], error) {
	msg := req.Msg
	if msg.Namespace == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, dispatch.ErrEmptyNamespace)
	}
	if msg.Method == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, dispatch.ErrEmptyMethod)
	}
	phase, err := dispatch.ParsePhase(msg.Phase)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%w: %v", dispatch.ErrInvalidPhase, err))
	}

	removed := s.engine.UninstallWrapper(msg.Namespace, msg.Method, phase)
	if s.store != nil {
		journaled, err := s.store.Delete(ctx, msg.Namespace, msg.Method, phase)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		removed = removed || journaled
	}
	if !removed {
		return nil, connect.NewError(connect.CodeNotFound,
			fmt.Errorf("no %s wrapper installed for %s.%s", phase, msg.Namespace, msg.Method))
	}
	return connect.NewResponse(&patchwire.UninstallResponse{}), nil
}

// List returns every installed wrapper. Value wrappers carry their encoded
// value when it can be encoded.
func (s *PatchService) List(
	ctx context.Context,
	req *connect.Request[patchwire.ListRequest],
) (*connect.Response[patchwire.ListResponse], error) {
	installed := s.engine.Wrappers().List()
	resp := &patchwire.ListResponse{Wrappers: make([]patchwire.WrapperInfo, 0, len(installed))}
	for _, in := range installed {
		info := patchwire.WrapperInfo{
			Namespace: in.Namespace,
			Method:    in.Method,
			Phase:     in.Phase.String(),
		}
		switch w := in.Wrapper.(type) {
		case dispatch.ValueWrapper:
			info.Kind = "value"
			data, err := patchwire.EncodeValue(w.Value)
			if err != nil {
				log.Debugf("list: value of %s.%s is not encodable: %v", in.Namespace, in.Method, err)
			} else {
				info.Value = data
			}
		case dispatch.BehaviorWrapper:
			info.Kind = "behavior"
		}
		resp.Wrappers = append(resp.Wrappers, info)
	}
	return connect.NewResponse(resp), nil
}

// Stats reports engine cache counters and the journal size.
func (s *PatchService) Stats(
	ctx context.Context,
	req *connect.Request[patchwire.StatsRequest],
) (*connect.Response[patchwire.StatsResponse], error) {
	st := s.engine.Stats()
	resp := &patchwire.StatsResponse{
		Engine:     st.Name,
		Registries: cacheStats(st.Registries),
		Owners:     cacheStats(st.Owners),
		Wrappers:   st.Wrappers,
	}
	if s.store != nil {
		n, err := s.store.Count(ctx)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		resp.Journaled = n
	}
	return connect.NewResponse(resp), nil
}

func cacheStats(cs dispatch.CacheStats) patchwire.CacheStats {
	return patchwire.CacheStats{
		Entries: cs.Entries,
		Hits:    cs.Hits,
		Misses:  cs.Misses,
		Loads:   cs.Loads,
	}
}
