// Package authz implements the authorization decision table: owner/tenant
// checks, published visibility, recipient visibility, permission-grant
// scope resolution, and protocol-rule/role walking, with delegated grants
// substituting the effective signer. Grounded on the teacher's
// massifs/massifcontextverified.go, which likewise evaluates an ordered
// list of conditions against an already-validated structure before
// declaring a result trustworthy.
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/datatrails/go-dwn/dwn/dwnerr"
	"github.com/datatrails/go-dwn/dwn/message"
)

// RecordLookup is the read-only view into storage this package needs to
// evaluate recipient checks, protocol rules, roles, and grants. The engine
// wires a concrete implementation over dwn/store.MessageStore.
type RecordLookup interface {
	// DominantWrite returns the current dominant write for recordID, or
	// ok=false if the record does not exist or its dominant entry is a
	// RecordsDelete tombstone.
	DominantWrite(ctx context.Context, tenant, recordID string) (rec *message.Message, ok bool, err error)

	// DominantAtPath returns the dominant write whose contextId==contextID
	// and descriptor.protocolPath==protocolPath, or ok=false.
	DominantAtPath(ctx context.Context, tenant, contextID, protocolPath string) (rec *message.Message, ok bool, err error)

	// ProtocolDefinition returns the active ProtocolsConfigure definition
	// for a normalized protocol URL, or ok=false.
	ProtocolDefinition(ctx context.Context, tenant, protocol string) (def *message.ProtocolDefinition, ok bool, err error)

	// GrantByID returns the RecordsWrite that authored the PermissionsGrant
	// identified by grantID (its messageCid), or ok=false.
	GrantByID(ctx context.Context, tenant, grantID string) (grant *message.Message, ok bool, err error)
}

// Request bundles everything Authorize needs to reach a decision.
type Request struct {
	Tenant string
	// Message is the inbound message being authorized.
	Message *message.Message
	// Author is the DID that produced authorization.signature. When the
	// message carries an authorDelegatedGrant, Authorize itself substitutes
	// the grant's grantedBy for it.
	Author string
	// Owner is the DID that produced authorization.ownerSignature, or "" if
	// the message carries none.
	Owner string
	// Action is the protocol-rule action this request attempts, as mapped
	// by message.ToProtocolAction. Zero value is valid for non-Records
	// interfaces, which never consult the protocol rule tree.
	Action message.Action
	// IsInitialWrite is true when Message is a RecordsWrite creating a new
	// record (as opposed to updating an existing one).
	IsInitialWrite bool
	// Now is the instant grant expiry is evaluated against, in
	// message.FormatTimestamp form. Callers pass time.Now() formatted so
	// tests can supply a fixed instant.
	Now string
}

// Authorizer evaluates Requests against a RecordLookup.
type Authorizer struct {
	Lookup RecordLookup
}

// New builds an Authorizer backed by lookup.
func New(lookup RecordLookup) *Authorizer {
	return &Authorizer{Lookup: lookup}
}

// Authorize runs the decision table, returning nil on success or a
// *dwnerr.Error on the first failing step: StatusUnauthorized for a denied
// request, StatusInternal when a Lookup call itself fails.
//
// A delegated grant is resolved first and, if present and valid, replaces
// req.Author with the grant's grantor for every subsequent step — the
// signer delegated the right to act as the grantor, so every check below
// runs as if the grantor itself had signed.
func (a *Authorizer) Authorize(ctx context.Context, req Request) error {
	if req.Message.Authorization.AuthorDelegatedGrant != nil {
		effectiveAuthor, err := a.resolveDelegatedGrant(req)
		if err != nil {
			return err
		}
		req.Author = effectiveAuthor
	}

	d := &req.Message.Descriptor

	if req.Owner != "" && req.Owner != req.Tenant {
		return dwnerr.Unauthorized("OwnerNotTenant", fmt.Errorf("ownerSignature signer %q is not tenant %q", req.Owner, req.Tenant))
	}
	if req.Owner == req.Tenant && req.Owner != "" {
		return nil
	}
	if req.Author == req.Tenant {
		return nil
	}

	isReadLike := message.IsReadLikeAction(req.Action)

	if isReadLike && d.Interface == message.InterfaceRecords {
		if d.Published != nil && *d.Published {
			return nil
		}
		if d.Recipient != "" && d.Recipient == req.Author {
			return nil
		}
	}

	if grantID := grantIDOf(req.Message); grantID != "" {
		return a.authorizeByGrant(ctx, req, grantID)
	}

	if d.Protocol != "" {
		return a.authorizeProtocol(ctx, req)
	}

	return dwnerr.Unauthorized("NotAuthorized", fmt.Errorf("author %q has no path to authorization", req.Author))
}

func grantIDOf(m *message.Message) string {
	payload, err := message.DecodeSignaturePayload(&m.Authorization.Signature)
	if err != nil {
		return ""
	}
	return payload.PermissionsGrantID
}

// resolveDelegatedGrant decodes the inline authorDelegatedGrant, checks it
// names req.Author as grantee, and returns the grantor DID that steps below
// should treat as the effective author.
func (a *Authorizer) resolveDelegatedGrant(req Request) (string, error) {
	grant, err := message.DecodeGrant(req.Message.Authorization.AuthorDelegatedGrant)
	if err != nil {
		return "", dwnerr.Unauthorized("MalformedDelegatedGrant", err)
	}
	if !grant.Delegated {
		return "", dwnerr.Unauthorized("NotADelegatedGrant", fmt.Errorf("authorDelegatedGrant does not authorize delegated signing"))
	}
	if grant.GrantedTo != req.Author {
		return "", dwnerr.Unauthorized("NotGrantee", fmt.Errorf("delegated grant was issued to %q, not %q", grant.GrantedTo, req.Author))
	}
	now := req.Now
	if now == "" {
		now = message.FormatTimestamp(time.Now().UTC())
	}
	if grant.Expired(now) {
		return "", dwnerr.Unauthorized("GrantExpired", fmt.Errorf("delegated grant expired at %q", grant.DateExpires))
	}
	d := &req.Message.Descriptor
	if grant.Scope.Interface != d.Interface || grant.Scope.Method != d.Method {
		return "", dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("delegated grant scopes %s/%s, message is %s/%s", grant.Scope.Interface, grant.Scope.Method, d.Interface, d.Method))
	}
	if grant.Scope.Protocol != "" && grant.Scope.Protocol != d.Protocol {
		return "", dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("delegated grant scopes protocol %q, message carries %q", grant.Scope.Protocol, d.Protocol))
	}
	if grant.Scope.ContextID != "" && grant.Scope.ContextID != req.Message.ContextID {
		return "", dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("delegated grant scopes contextId %q", grant.Scope.ContextID))
	}
	return grant.GrantedBy, nil
}

// authorizeByGrant implements the permissionsGrantId path: an ordinary
// (non-delegated) grant authorizing req.Author to perform one action within
// a declared scope, looked up by messageCid via Lookup.GrantByID.
func (a *Authorizer) authorizeByGrant(ctx context.Context, req Request, grantID string) error {
	grantMsg, ok, err := a.Lookup.GrantByID(ctx, req.Tenant, grantID)
	if err != nil {
		return dwnerr.Internal("GrantLookupError", err)
	}
	if !ok {
		return dwnerr.Unauthorized("GrantNotFound", fmt.Errorf("permissionsGrantId %q does not resolve", grantID))
	}
	grant, err := message.DecodeGrant(grantMsg)
	if err != nil {
		return dwnerr.Unauthorized("GrantNotFound", err)
	}
	if grant.GrantedTo != req.Author {
		return dwnerr.Unauthorized("NotGrantee", fmt.Errorf("grant was issued to %q, not %q", grant.GrantedTo, req.Author))
	}
	if grant.GrantedBy != req.Tenant {
		return dwnerr.Unauthorized("GrantNotFromTenant", fmt.Errorf("grant was issued by %q, not tenant %q", grant.GrantedBy, req.Tenant))
	}
	now := req.Now
	if now == "" {
		now = message.FormatTimestamp(time.Now().UTC())
	}
	if grant.Expired(now) {
		return dwnerr.Unauthorized("GrantExpired", fmt.Errorf("grant expired at %q", grant.DateExpires))
	}

	d := &req.Message.Descriptor
	if grant.Scope.Interface != d.Interface || grant.Scope.Method != d.Method {
		return dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("grant scopes %s/%s, message is %s/%s", grant.Scope.Interface, grant.Scope.Method, d.Interface, d.Method))
	}
	if grant.Scope.Protocol != "" {
		switch {
		case grant.Scope.Protocol != d.Protocol:
			return dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("grant scopes protocol %q, message carries %q", grant.Scope.Protocol, d.Protocol))
		case grant.Scope.ContextID != "" && grant.Scope.ContextID != req.Message.ContextID:
			return dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("grant scopes contextId %q", grant.Scope.ContextID))
		case grant.Scope.ProtocolPath != "" && grant.Scope.ProtocolPath != d.ProtocolPath:
			return dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("grant scopes protocolPath %q", grant.Scope.ProtocolPath))
		case grant.Scope.Schema != "" && grant.Scope.Schema != d.Schema:
			return dwnerr.Unauthorized("ScopeMismatch", fmt.Errorf("grant scopes schema %q", grant.Scope.Schema))
		}
	}
	return nil
}

// authorizeProtocol walks the protocol's rule tree to the record's
// protocolPath and checks whether any $actions entry of that node is
// satisfied by the author. Only that node's $actions are consulted; a role
// rule naming a $globalRole path is matched without regard to contextId.
func (a *Authorizer) authorizeProtocol(ctx context.Context, req Request) error {
	d := &req.Message.Descriptor
	def, ok, err := a.Lookup.ProtocolDefinition(ctx, req.Tenant, d.Protocol)
	if err != nil {
		return dwnerr.Internal("ProtocolLookupError", err)
	}
	if !ok {
		return dwnerr.Unauthorized("ProtocolNotFound", fmt.Errorf("protocol %q is not configured", d.Protocol))
	}

	node, ok := def.RuleAt(d.ProtocolPath)
	if !ok {
		return dwnerr.Unauthorized("NotARole", fmt.Errorf("protocolPath %q has no rule node", d.ProtocolPath))
	}

	globalRoles := globalRolePaths(def)

	var lastErr error = dwnerr.Unauthorized("ActionNotAllowed", fmt.Errorf("no rule at %q permits %s to %s", d.ProtocolPath, req.Author, req.Action))
	for _, rule := range node.Actions {
		if rule.Action != req.Action {
			continue
		}
		if err := a.satisfies(ctx, req, rule, globalRoles); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return lastErr
}

// globalRolePaths returns every protocolPath in def marked $role at the
// structure's top level: a role granted anywhere in the protocol tree (not
// scoped to one context) that every nested rule node may reference by path.
func globalRolePaths(def *message.ProtocolDefinition) map[string]bool {
	paths := map[string]bool{}
	for path, rs := range def.Structure {
		if rs.Role {
			paths[path] = true
		}
	}
	return paths
}

// satisfies checks one $actions rule against the request's author.
// globalRoles names which role paths are unscoped ($globalRole): a rule
// naming one of them is checked without the contextId constraint that
// applies to every other, context-scoped role.
func (a *Authorizer) satisfies(ctx context.Context, req Request, rule message.ActionRule, globalRoles map[string]bool) error {
	switch rule.Who {
	case message.WhoAnyone, "":
		return nil
	case message.WhoAuthor:
		return a.satisfiesAncestorRole(ctx, req, rule.OfPath, func(anc *message.Message) bool {
			return anc.Author == req.Author
		}, "NotAuthor")
	case message.WhoRecipient:
		return a.satisfiesAncestorRole(ctx, req, rule.OfPath, func(anc *message.Message) bool {
			return anc.Descriptor.Recipient == req.Author
		}, "NotRecipient")
	case message.WhoRole:
		contextID := req.Message.ContextID
		if globalRoles[rule.Role] {
			contextID = ""
		}
		rec, ok, err := a.Lookup.DominantAtPath(ctx, req.Tenant, contextID, rule.Role)
		if err != nil {
			return dwnerr.Internal("RoleLookupError", err)
		}
		if !ok {
			return dwnerr.Unauthorized("MissingRole", fmt.Errorf("no dominant write at role path %q", rule.Role))
		}
		if rec.Descriptor.Recipient != req.Author {
			return dwnerr.Unauthorized("NotARole", fmt.Errorf("author %q does not hold role %q", req.Author, rule.Role))
		}
		return nil
	default:
		return dwnerr.Unauthorized("NotARole", fmt.Errorf("unknown who %q", rule.Who))
	}
}

func (a *Authorizer) satisfiesAncestorRole(ctx context.Context, req Request, ofPath string, match func(*message.Message) bool, failReason string) error {
	rec, ok, err := a.Lookup.DominantAtPath(ctx, req.Tenant, req.Message.ContextID, ofPath)
	if err != nil {
		return dwnerr.Internal("RoleLookupError", err)
	}
	if !ok || !match(rec) {
		return dwnerr.Unauthorized(failReason, fmt.Errorf("no ancestor at %q satisfies the rule", ofPath))
	}
	return nil
}
