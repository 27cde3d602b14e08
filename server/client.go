package server

import (
	"context"
	"fmt"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/patchwire"
)

// Client calls the control service.
type Client struct {
	install   *connect.Client[patchwire.InstallRequest, patchwire.InstallResponse]
	uninstall *connect.Client[patchwire.UninstallRequest, patchwire.UninstallResponse]
	list      *connect.Client[patchwire.ListRequest, patchwire.ListResponse]
	stats     *connect.Client[patchwire.StatsRequest, patchwire.StatsResponse]
}

// NewClient creates a client for the service at baseURL, for example
// http://127.0.0.1:4568.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(patchwire.Codec{})}, opts...)
	return &Client{
		install:   connect.NewClient[patchwire.InstallRequest, patchwire.InstallResponse](httpClient, baseURL+PatchServiceInstallProcedure, opts...),
		uninstall: connect.NewClient[patchwire.UninstallRequest, patchwire.UninstallResponse](httpClient, baseURL+PatchServiceUninstallProcedure, opts...),
		list:      connect.NewClient[patchwire.ListRequest, patchwire.ListResponse](httpClient, baseURL+PatchServiceListProcedure, opts...),
		stats:     connect.NewClient[patchwire.StatsRequest, patchwire.StatsResponse](httpClient, baseURL+PatchServiceStatsProcedure, opts...),
	}
}

// Install installs p on the remote engine. A patch without an encoded
// value fails locally with CodeInvalidArgument, since the wire encoding
// cannot tell it apart from a nil value.
func (c *Client) Install(ctx context.Context, p patchwire.Patch) (*patchwire.InstallResponse, error) {
	if len(p.Value) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%w: %s.%s", patchwire.ErrNoValue, p.Namespace, p.Method))
	}
	resp, err := c.install.CallUnary(ctx, connect.NewRequest(&patchwire.InstallRequest{Patch: p}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Uninstall removes the wrapper at (namespace, method, phase).
func (c *Client) Uninstall(ctx context.Context, namespace, method string, phase dispatch.Phase) error {
	_, err := c.uninstall.CallUnary(ctx, connect.NewRequest(&patchwire.UninstallRequest{
		Namespace: namespace,
		Method:    method,
		Phase:     phase.String(),
	}))
	return err
}

// List returns the installed wrappers.
func (c *Client) List(ctx context.Context) ([]patchwire.WrapperInfo, error) {
	resp, err := c.list.CallUnary(ctx, connect.NewRequest(&patchwire.ListRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Wrappers, nil
}

// Stats returns engine counters.
func (c *Client) Stats(ctx context.Context) (*patchwire.StatsResponse, error) {
	resp, err := c.stats.CallUnary(ctx, connect.NewRequest(&patchwire.StatsRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
