package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintProcessedOrderAction = "uniq_processed_order_action"
	constraintStockItemPrimary     = "stock_items_pkey"
	pgUniqueViolationCode          = "23505"
	sqliteConstraintCode           = 19
	errorOperationStore            = "store"
	errorSubjectStock              = "stock"
	errorSubjectProcessedOrder     = "processed_order"
	errorCodeCreate                = "create"
	errorCodeDuplicate             = "duplicate"
	errorCodeGet                   = "get"
	errorCodeInvalid               = "invalid"
	errorCodeList                  = "list"
	errorCodeSave                  = "save"
)

// Store implements stockledger.Ledger using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Row locks taken by
// GetStockForUpdate inside fn are held until fn returns.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txLedger stockledger.Ledger) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetStock(ctx context.Context, productID stockledger.ProductID) (stockledger.StockRecord, error) {
	var model StockItem
	err := store.db.WithContext(ctx).
		Where("product_id = ?", productID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return stockledger.StockRecord{}, wrapStoreError(errorSubjectStock, errorCodeGet, stockledger.ErrUnknownProduct)
		}
		return stockledger.StockRecord{}, wrapStoreError(errorSubjectStock, errorCodeGet, err)
	}
	return mapStockItem(model)
}

func (store *Store) GetStockForUpdate(ctx context.Context, productID stockledger.ProductID) (stockledger.StockRecord, error) {
	var model StockItem
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return stockledger.StockRecord{}, wrapStoreError(errorSubjectStock, errorCodeGet, stockledger.ErrUnknownProduct)
		}
		return stockledger.StockRecord{}, wrapStoreError(errorSubjectStock, errorCodeGet, err)
	}
	return mapStockItem(model)
}

func (store *Store) CreateStock(ctx context.Context, record stockledger.StockRecord) error {
	model := StockItem{
		ProductID:    record.ProductID.String(),
		AvailableQty: record.AvailableQty,
		ReservedQty:  record.ReservedQty,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintStockItemPrimary) {
		return wrapStoreError(errorSubjectStock, errorCodeDuplicate, stockledger.ErrProductExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectStock, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) SaveStock(ctx context.Context, record stockledger.StockRecord) error {
	result := store.db.WithContext(ctx).
		Model(&StockItem{}).
		Where("product_id = ?", record.ProductID.String()).
		Updates(map[string]interface{}{
			"available_qty": record.AvailableQty,
			"reserved_qty":  record.ReservedQty,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectStock, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectStock, errorCodeSave, stockledger.ErrUnknownProduct)
	}
	return nil
}

func (store *Store) ListReservedProducts(ctx context.Context) ([]stockledger.ProductID, error) {
	var rows []StockItem
	err := store.db.WithContext(ctx).
		Where("reserved_qty > 0").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStock, errorCodeList, err)
	}
	productIDs := make([]stockledger.ProductID, 0, len(rows))
	for _, row := range rows {
		productID, err := stockledger.NewProductID(row.ProductID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectStock, errorCodeInvalid, err)
		}
		productIDs = append(productIDs, productID)
	}
	return productIDs, nil
}

func (store *Store) MarkOrderProcessed(ctx context.Context, orderID stockledger.OrderID, action stockledger.OrderAction) error {
	model := ProcessedOrder{
		OrderID:     orderID.String(),
		Action:      string(action),
		ProcessedAt: time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintProcessedOrderAction) {
		return wrapStoreError(errorSubjectProcessedOrder, errorCodeDuplicate, stockledger.ErrOrderAlreadyProcessed)
	}
	if err != nil {
		return wrapStoreError(errorSubjectProcessedOrder, errorCodeCreate, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return stockledger.WrapError(errorOperationStore, subject, code, err)
}

func mapStockItem(model StockItem) (stockledger.StockRecord, error) {
	productID, err := stockledger.NewProductID(model.ProductID)
	if err != nil {
		return stockledger.StockRecord{}, wrapStoreError(errorSubjectStock, errorCodeInvalid, err)
	}
	return stockledger.StockRecord{
		ProductID:    productID,
		AvailableQty: model.AvailableQty,
		ReservedQty:  model.ReservedQty,
	}, nil
}

func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
