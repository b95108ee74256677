package engine

import (
	"context"

	"github.com/datatrails/go-dwn/dwn/filter"
	"github.com/datatrails/go-dwn/dwn/message"
	"github.com/datatrails/go-dwn/dwn/store"
)

// storeLookup implements authz.RecordLookup over a plain store.MessageStore,
// the "read-only view the authorizer needs of the same store it is gating"
// the authz package's doc comment calls for.
type storeLookup struct {
	messages store.MessageStore
}

func newStoreLookup(ms store.MessageStore) *storeLookup {
	return &storeLookup{messages: ms}
}

func (l *storeLookup) DominantWrite(ctx context.Context, tenant, recordID string) (*message.Message, bool, error) {
	fs := filter.Set{filter.Filter{
		"recordId":          filter.Equality(filter.String(recordID)),
		"isLatestBaseState": filter.Equality(filter.Bool(true)),
	}}
	rec, ok, err := l.one(ctx, tenant, fs)
	if err != nil || !ok || rec.IsRecordsDelete() {
		return nil, false, err
	}
	return rec, true, nil
}

// DominantAtPath returns the dominant write at protocolPath, scoped to
// contextID unless contextID is empty (the $globalRole case, where the role
// applies regardless of context). When more than one record holds a role at
// the same path — which only a badly authored protocol produces — the first
// match found is used.
func (l *storeLookup) DominantAtPath(ctx context.Context, tenant, contextID, protocolPath string) (*message.Message, bool, error) {
	f := filter.Filter{
		"protocolPath":      filter.Equality(filter.String(protocolPath)),
		"isLatestBaseState": filter.Equality(filter.Bool(true)),
	}
	if contextID != "" {
		f["contextId"] = filter.Equality(filter.String(contextID))
	}
	return l.one(ctx, tenant, filter.Set{f})
}

func (l *storeLookup) ProtocolDefinition(ctx context.Context, tenant, protocol string) (*message.ProtocolDefinition, bool, error) {
	fs := filter.Set{filter.Filter{
		"interface": filter.Equality(filter.String(string(message.InterfaceProtocols))),
		"method":    filter.Equality(filter.String(string(message.MethodConfigure))),
		"protocol":  filter.Equality(filter.String(protocol)),
	}}
	res, err := l.messages.Query(ctx, tenant, fs, store.QueryOptions{SortProperty: "messageTimestamp", Ascending: false, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(res.Messages) == 0 || res.Messages[0].Descriptor.Definition == nil {
		return nil, false, nil
	}
	return res.Messages[0].Descriptor.Definition, true, nil
}

func (l *storeLookup) GrantByID(ctx context.Context, tenant, grantID string) (*message.Message, bool, error) {
	m, err := l.messages.Get(ctx, tenant, grantID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}

func (l *storeLookup) one(ctx context.Context, tenant string, fs filter.Set) (*message.Message, bool, error) {
	res, err := l.messages.Query(ctx, tenant, fs, store.QueryOptions{Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(res.Messages) == 0 {
		return nil, false, nil
	}
	return res.Messages[0], true, nil
}
