package model

import (
	"reflect"
	"testing"
)

func TestActionRecord_Payload(t *testing.T) {
	ref := ContentRef{9}
	tests := []struct {
		name string
		rec  ActionRecord
		want RecordPayload
	}{
		{
			name: "created",
			rec:  ActionRecord{Action: ActionCreated, LastAccessedBy: "1", ContentRef: ref},
			want: CreatedPayload{ContentRef: ref},
		},
		{
			name: "updated",
			rec:  ActionRecord{Action: ActionUpdated, ContentRef: ref},
			want: UpdatedPayload{ContentRef: ref},
		},
		{
			name: "viewed",
			rec:  ActionRecord{Action: ActionViewed, LastAccessedBy: "77"},
			want: AccessedPayload{Actor: "77", Kind: AccessView},
		},
		{
			name: "downloaded",
			rec:  ActionRecord{Action: ActionDownloaded, LastAccessedBy: "77"},
			want: AccessedPayload{Actor: "77", Kind: AccessDownload},
		},
		{
			name: "shared download of both",
			rec:  ActionRecord{Action: ActionSharedDownload, SharedUser: "77", SharedEndDate: 500, ShareLevel: ShareBoth},
			want: SharedPayload{Grantee: "77", Permission: PermissionDownload, Level: ShareBoth, EndDate: 500},
		},
		{
			name: "shared view without level",
			rec:  ActionRecord{Action: ActionSharedView, SharedUser: "77"},
			want: SharedPayload{Grantee: "77", Permission: PermissionView},
		},
		{
			name: "unknown action",
			rec:  ActionRecord{Action: Action(42)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rec.Payload()
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Payload() = %#v, want %#v", got, tt.want)
			}
			if got != nil && got.Action() != tt.rec.Action {
				t.Errorf("Payload().Action() = %s, want %s", got.Action(), tt.rec.Action)
			}
		})
	}
}

func TestActionRecord_TypedAccessors(t *testing.T) {
	share := ActionRecord{Action: ActionSharedView, SharedUser: "77", ShareLevel: ShareView}
	if _, ok := share.Created(); ok {
		t.Error("Created() on a share record ok = true")
	}
	if _, ok := share.Accessed(); ok {
		t.Error("Accessed() on a share record ok = true")
	}
	p, ok := share.Shared()
	if !ok || p.Grantee != "77" || p.Level != ShareView {
		t.Errorf("Shared() = %+v, %v, want 77 at view", p, ok)
	}

	view := ActionRecord{Action: ActionViewed, LastAccessedBy: "77"}
	if a, ok := view.Accessed(); !ok || a.Actor != "77" || a.Kind != AccessView {
		t.Errorf("Accessed() = %+v, %v, want 77 viewing", a, ok)
	}
}

func TestShareLevel_Code(t *testing.T) {
	for _, level := range []ShareLevel{ShareView, ShareDownload, ShareBoth} {
		c, ok := level.Code()
		if !ok {
			t.Fatalf("%s.Code() ok = false", level)
		}
		if got, ok := ShareLevelFromCode(c); !ok || got != level {
			t.Errorf("ShareLevelFromCode(%d) = %s, %v, want %s", c, got, ok, level)
		}
	}
	if _, ok := ShareLevel("admin").Code(); ok {
		t.Error(`ShareLevel("admin").Code() ok = true`)
	}
	if _, ok := ShareLevelFromCode(3); ok {
		t.Error("ShareLevelFromCode(3) ok = true")
	}
	if !ShareBoth.Includes(PermissionDownload) || ShareView.Includes(PermissionDownload) {
		t.Error("Includes() disagrees with Permissions()")
	}
}

func TestParseContentRef(t *testing.T) {
	ref := ContentRef{1, 2, 3, 0xff}
	got, err := ParseContentRef(ref.String())
	if err != nil {
		t.Fatalf("ParseContentRef() error = %v", err)
	}
	if got != ref {
		t.Errorf("ParseContentRef() = %s, want %s", got, ref)
	}

	for _, in := range []string{"", "zz", "0102"} {
		if _, err := ParseContentRef(in); err == nil {
			t.Errorf("ParseContentRef(%q) expected error", in)
		}
	}
}
