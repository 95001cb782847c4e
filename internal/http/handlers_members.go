package http

import (
	"net/http"

	"kharch/internal/core"
	klog "kharch/internal/log"
)

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := storeContext(r)
	defer cancel()

	members, err := s.ledger.ListMembers(ctx)
	if err != nil {
		s.fail(w, r, "list_members", err)
		return
	}
	NewResponse().JSON(members).Write(w)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, "get_member", err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	m, err := s.ledger.GetMember(ctx, id)
	if err != nil {
		s.fail(w, r, "get_member", err)
		return
	}
	NewResponse().JSON(m).Write(w)
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var in core.MemberInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, klog.OpCreate, err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	m, err := s.ledger.CreateMember(ctx, in)
	if err != nil {
		s.fail(w, r, klog.OpCreate, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Member created",
		klog.FieldMemberID, m.ID,
		klog.FieldAmount, m.Contribution.Int64())
	NewResponse().Status(http.StatusCreated).JSON(m).Write(w)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	var p core.MemberPatch
	if err := decodeJSON(w, r, &p); err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	m, err := s.ledger.UpdateMember(ctx, id, p)
	if err != nil {
		s.fail(w, r, klog.OpUpdate, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Member updated", klog.FieldMemberID, id)
	NewResponse().JSON(m).Write(w)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, klog.OpDelete, err)
		return
	}
	ctx, cancel := storeContext(r)
	defer cancel()

	if err := s.ledger.DeleteMember(ctx, id); err != nil {
		s.fail(w, r, klog.OpDelete, err)
		return
	}
	klog.FromContext(ctx).InfoContext(ctx, "Member deleted", klog.FieldMemberID, id)
	NewResponse().Status(http.StatusNoContent).Write(w)
}
