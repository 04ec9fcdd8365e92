package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/mmdatafocus/stock_ledger/models"
	"github.com/mmdatafocus/stock_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("stock-ledger")

type SyncBalancesOptions struct {
	DryRun bool
}

// SyncBalancesCounts tallies the changes made for one payment kind.
type SyncBalancesCounts struct {
	HealedDeleted       int `json:"healed_deleted"`
	DuplicatesDeleted   int `json:"duplicates_deleted"`
	Relinked            int `json:"relinked"`
	Unlinked            int `json:"unlinked"`
	HealedInserted      int `json:"healed_inserted"`
	CachedTotalsUpdated int `json:"cached_totals_updated"`
}

type SyncBalancesResult struct {
	CorrelationId string             `json:"correlation_id"`
	DryRun        bool               `json:"dry_run"`
	Suppliers     SyncBalancesCounts `json:"suppliers"`
	Customers     SyncBalancesCounts `json:"customers"`
}

// SyncBalances makes every purchase's paid total and every sale's received total
// equal the sum of the payment records linked to it, relinking records that
// point at the wrong party. It runs in one transaction; a dry run rolls back.
func SyncBalances(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts SyncBalancesOptions) (*SyncBalancesResult, error) {
	if logger == nil {
		logger = config.GetLogger()
	}
	ctx, span := tracer.Start(ctx, "workflow.SyncBalances")
	defer span.End()

	result := &SyncBalancesResult{CorrelationId: correlationIdFor(ctx), DryRun: opts.DryRun}
	span.SetAttributes(attribute.String("correlation_id", result.CorrelationId), attribute.Bool("dry_run", opts.DryRun))
	logger.WithFields(logrus.Fields{
		"correlation_id": result.CorrelationId,
		"dry_run":        opts.DryRun,
	}).Info("sync.balances.start")

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lock, err := acquireJobLock(ctx, tx, logger, "sync-balances")
		if err != nil {
			return err
		}
		defer lock.release(ctx)

		w := reportWriter{tx: tx, correlationId: result.CorrelationId}
		if result.Suppliers, err = syncPaymentKind(tx, logger, w, models.PaymentKindSupplier); err != nil {
			return err
		}
		if result.Customers, err = syncPaymentKind(tx, logger, w, models.PaymentKindCustomer); err != nil {
			return err
		}
		if opts.DryRun {
			return utils.ErrDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, utils.ErrDryRun) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(logger, "syncBalances.go", "SyncBalances", "running sync-balances", result.CorrelationId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"correlation_id": result.CorrelationId,
		"dry_run":        opts.DryRun,
		"suppliers":      result.Suppliers,
		"customers":      result.Customers,
	}).Info("sync.balances.end")
	return result, nil
}

func documentEntity(kind models.PaymentKind) string {
	if kind == models.PaymentKindSupplier {
		return "Purchase"
	}
	return "Sale"
}

const paymentEntity = "PaymentRecord"

func syncPaymentKind(tx *gorm.DB, logger *logrus.Logger, w reportWriter, kind models.PaymentKind) (SyncBalancesCounts, error) {
	var counts SyncBalancesCounts
	family := kind.DocumentFamily()
	fields := logrus.Fields{"correlation_id": w.correlationId, "kind": kind}

	// 1) undo earlier healing so repeated runs converge
	var healed []models.PaymentRecord
	if err := tx.Where("kind = ? AND origin = ?", kind, models.PaymentOriginHealed).Order("id").Find(&healed).Error; err != nil {
		return counts, err
	}
	for _, r := range healed {
		if err := tx.Delete(&models.PaymentRecord{}, r.ID).Error; err != nil {
			return counts, err
		}
		if err := w.write(CheckHealedDeleted, paymentEntity, r.ID, "amount=%s document_id=%s", r.Amount.StringFixed(4), docRef(r.DocumentId)); err != nil {
			return counts, err
		}
		counts.HealedDeleted++
	}

	// 2) dedupe
	var records []models.PaymentRecord
	if err := tx.Where("kind = ?", kind).Order("id").Find(&records).Error; err != nil {
		return counts, err
	}
	records, deleted, err := dedupePayments(tx, w, records)
	if err != nil {
		return counts, err
	}
	counts.DuplicatesDeleted = deleted

	// 3) relink
	docs, err := models.LoadPayables(tx, kind)
	if err != nil {
		return counts, err
	}
	byId := make(map[int]models.PayableDocument, len(docs))
	openByParty := make(map[int][]models.PayableDocument)
	for _, d := range docs {
		byId[d.DocumentId()] = d
		if !d.Trashed() {
			openByParty[d.PartyId()] = append(openByParty[d.PartyId()], d)
		}
	}
	for _, list := range openByParty {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].DocumentDate().Equal(list[j].DocumentDate()) {
				return list[i].DocumentDate().Before(list[j].DocumentDate())
			}
			return list[i].DocumentId() < list[j].DocumentId()
		})
	}

	linked := make(map[int]decimal.Decimal)
	pending := make([]models.PaymentRecord, 0)
	for _, r := range records {
		if r.DocumentId != nil {
			if d, ok := byId[*r.DocumentId]; ok && d.PartyId() == r.PartyId {
				linked[d.DocumentId()] = linked[d.DocumentId()].Add(r.Amount)
				continue
			}
		}
		pending = append(pending, r)
	}
	for _, r := range pending {
		var target models.PayableDocument
		for _, d := range openByParty[r.PartyId] {
			if utils.ExceedsBy(d.AmountDue(), linked[d.DocumentId()]) {
				target = d
				break
			}
		}
		if target == nil {
			if r.DocumentId == nil {
				continue
			}
			if err := tx.Model(&models.PaymentRecord{}).Where("id = ?", r.ID).Update("document_id", nil).Error; err != nil {
				return counts, err
			}
			if err := w.write(CheckUnlinked, paymentEntity, r.ID, "from document_id=%d: no open %s for party %d", *r.DocumentId, documentEntity(kind), r.PartyId); err != nil {
				return counts, err
			}
			counts.Unlinked++
			continue
		}
		id := target.DocumentId()
		if err := tx.Model(&models.PaymentRecord{}).Where("id = ?", r.ID).Update("document_id", id).Error; err != nil {
			return counts, err
		}
		linked[id] = linked[id].Add(r.Amount)
		if err := w.write(CheckRelinked, paymentEntity, r.ID, "document_id %s -> %d", docRef(r.DocumentId), id); err != nil {
			return counts, err
		}
		counts.Relinked++
	}

	// 4) heal gaps left by totals recorded before payments were tracked
	// 5) write back cached totals
	for _, d := range docs {
		id := d.DocumentId()
		sum := utils.Normalize(linked[id])
		cached := d.CachedPaid().Round(4)
		if utils.ExceedsBy(cached, sum) {
			gap := cached.Sub(sum)
			rec := models.PaymentRecord{
				Kind:        kind,
				PartyId:     d.PartyId(),
				DocumentId:  &id,
				Amount:      gap,
				PaymentDate: utils.DateOnly(d.DocumentDate()),
				Remarks:     models.HealedPaymentRemarks,
				Origin:      models.PaymentOriginHealed,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return counts, err
			}
			if err := w.write(CheckHealedInserted, documentEntity(kind), id, "payment_id=%d gap=%s", rec.ID, gap.StringFixed(4)); err != nil {
				return counts, err
			}
			counts.HealedInserted++
			sum = sum.Add(gap)
		}
		if !sum.Equal(cached) {
			if err := models.SetCachedPaid(tx, family, id, sum); err != nil {
				return counts, err
			}
			if err := w.write(CheckCachedTotalUpdated, documentEntity(kind), id, "%s -> %s", cached.StringFixed(4), sum.StringFixed(4)); err != nil {
				return counts, err
			}
			counts.CachedTotalsUpdated++
		}
	}

	logger.WithFields(fields).WithField("counts", counts).Info("sync.balances.kind")
	return counts, nil
}

// dedupePayments removes repeated records sharing document, amount, date and
// party. The initial-at-creation record is kept in preference to the others.
func dedupePayments(tx *gorm.DB, w reportWriter, records []models.PaymentRecord) ([]models.PaymentRecord, int, error) {
	groups := make(map[string][]int)
	order := make([]string, 0)
	for i, r := range records {
		key := fmt.Sprintf("%s|%s|%s|%d", docRef(r.DocumentId), r.Amount.Round(4).String(),
			r.PaymentDate.UTC().Format(utils.DateLayout), r.PartyId)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	drop := make(map[int]bool)
	for _, key := range order {
		idx := groups[key]
		if len(idx) < 2 {
			continue
		}
		keeper := idx[0]
		for _, i := range idx {
			if records[i].Origin == models.PaymentOriginInitialAtCreation {
				keeper = i
				break
			}
		}
		for _, i := range idx {
			if i == keeper || records[i].Origin == models.PaymentOriginInitialAtCreation {
				continue
			}
			r := records[i]
			if err := tx.Delete(&models.PaymentRecord{}, r.ID).Error; err != nil {
				return nil, 0, err
			}
			if err := w.write(CheckDuplicateDeleted, paymentEntity, r.ID, "duplicate of payment_id=%d", records[keeper].ID); err != nil {
				return nil, 0, err
			}
			drop[i] = true
		}
	}

	kept := make([]models.PaymentRecord, 0, len(records)-len(drop))
	for i, r := range records {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	return kept, len(drop), nil
}

func docRef(id *int) string {
	if id == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *id)
}
