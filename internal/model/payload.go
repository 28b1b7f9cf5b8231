package model

// RecordPayload is the action-specific part of an ActionRecord. The set of
// implementations is closed: CreatedPayload, UpdatedPayload, AccessedPayload
// and SharedPayload.
type RecordPayload interface {
	Action() Action
	isRecordPayload()
}

// CreatedPayload is the payload of a created record.
type CreatedPayload struct {
	ContentRef ContentRef
}

// UpdatedPayload is the payload of an updated record. The record's Title is
// the new title.
type UpdatedPayload struct {
	ContentRef ContentRef
}

// AccessedPayload is the payload of a viewed or downloaded record.
type AccessedPayload struct {
	Actor string
	Kind  AccessKind
}

// SharedPayload is the payload of a shared_view or shared_download record.
type SharedPayload struct {
	Grantee    string
	Permission Permission
	// Level is the grant the grantee holds once this record applies. Empty
	// on records written before levels were recorded.
	Level   ShareLevel
	EndDate uint64 // 0 never expires
}

func (CreatedPayload) Action() Action    { return ActionCreated }
func (UpdatedPayload) Action() Action    { return ActionUpdated }
func (p AccessedPayload) Action() Action { return p.Kind.Action() }
func (p SharedPayload) Action() Action   { return p.Permission.SharedAction() }

func (CreatedPayload) isRecordPayload()  {}
func (UpdatedPayload) isRecordPayload()  {}
func (AccessedPayload) isRecordPayload() {}
func (SharedPayload) isRecordPayload()   {}

// Payload returns the typed payload of r, or nil for an unknown action.
func (r *ActionRecord) Payload() RecordPayload {
	switch r.Action {
	case ActionCreated:
		return CreatedPayload{ContentRef: r.ContentRef}
	case ActionUpdated:
		return UpdatedPayload{ContentRef: r.ContentRef}
	case ActionViewed:
		return AccessedPayload{Actor: r.LastAccessedBy, Kind: AccessView}
	case ActionDownloaded:
		return AccessedPayload{Actor: r.LastAccessedBy, Kind: AccessDownload}
	case ActionSharedView, ActionSharedDownload:
		p := SharedPayload{Grantee: r.SharedUser, EndDate: r.SharedEndDate, Level: r.ShareLevel}
		p.Permission = PermissionView
		if r.Action == ActionSharedDownload {
			p.Permission = PermissionDownload
		}
		return p
	default:
		return nil
	}
}

// Created returns the payload of a created record.
func (r *ActionRecord) Created() (CreatedPayload, bool) {
	p, ok := r.Payload().(CreatedPayload)
	return p, ok
}

// Accessed returns the payload of a viewed or downloaded record.
func (r *ActionRecord) Accessed() (AccessedPayload, bool) {
	p, ok := r.Payload().(AccessedPayload)
	return p, ok
}

// Shared returns the payload of a share record.
func (r *ActionRecord) Shared() (SharedPayload, bool) {
	p, ok := r.Payload().(SharedPayload)
	return p, ok
}
