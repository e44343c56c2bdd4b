package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/models"
	"github.com/payrecon/internal/repository"

	"gorm.io/gorm"
)

// RemoteLineNoteService 远端行项目退款/取消备注订阅者，按行ID账本去重
type RemoteLineNoteService struct {
	orderRepo  repository.OrderRepository
	ledgerRepo repository.RemoteLineLedgerRepository
	noteRepo   repository.OrderNoteRepository
	bus        *EventBus
}

// NewRemoteLineNoteService 创建行项目备注服务
func NewRemoteLineNoteService(orderRepo repository.OrderRepository, ledgerRepo repository.RemoteLineLedgerRepository, noteRepo repository.OrderNoteRepository, bus *EventBus) *RemoteLineNoteService {
	return &RemoteLineNoteService{
		orderRepo:  orderRepo,
		ledgerRepo: ledgerRepo,
		noteRepo:   noteRepo,
		bus:        bus,
	}
}

// Subscribe 订阅退款与行取消事件
func (s *RemoteLineNoteService) Subscribe() {
	if s.bus == nil {
		return
	}
	s.bus.RemoteRefunded.Subscribe("remote_line_note", func(ctx context.Context, event RemoteLinesEvent) error {
		_, err := s.Record(event, constants.RemoteLineKindRefunded)
		return err
	})
	s.bus.RemoteLinesCancelled.Subscribe("remote_line_note", func(ctx context.Context, event RemoteLinesEvent) error {
		_, err := s.Record(event, constants.RemoteLineKindCancelled)
		return err
	})
}

// Record 在同一事务内写入账本与备注；只为首次出现的行ID写备注，返回新记录的行ID
func (s *RemoteLineNoteService) Record(event RemoteLinesEvent, kind string) ([]string, error) {
	if event.OrderID == 0 || len(event.LineIDs) == 0 {
		return nil, nil
	}
	template := constants.NoteLinesRefunded
	if kind == constants.RemoteLineKindCancelled {
		template = constants.NoteLinesCancelled
	}

	var inserted []string
	err := s.orderRepo.Transaction(func(tx *gorm.DB) error {
		ids, err := s.ledgerRepo.WithTx(tx).Record(event.OrderID, kind, event.LineIDs)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		inserted = ids
		return s.noteRepo.WithTx(tx).Create(&models.OrderNote{
			OrderID: event.OrderID,
			Source:  constants.NoteSourceRemoteLines,
			Content: fmt.Sprintf(template, strings.Join(ids, ", ")),
		})
	})
	if err != nil {
		reconcileLogger("order_id", event.OrderID, "remote_id", event.RemoteResourceID).Errorw("remote_line_note_failed",
			"kind", kind,
			"line_ids", event.LineIDs,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrNoteRecordFailed, err)
	}
	if len(inserted) == 0 {
		reconcileLogger("order_id", event.OrderID, "remote_id", event.RemoteResourceID).Debugw("remote_line_note_duplicate_skipped", "kind", kind)
	}
	return inserted, nil
}
