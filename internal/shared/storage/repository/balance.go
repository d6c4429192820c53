// Package repository Balance 相关的存储操作
package repository

import (
	"context"
	"fmt"

	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/storage"
)

// Reserve 预扣额度
//
// 单条条件 UPDATE 完成检查与扣减，并发预扣不会透支。
func (s *Store) Reserve(ctx context.Context, ownerID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("reserve: negative amount %d", amount)
	}
	query := s.rebind(`
		UPDATE balances
		SET available = available - $1, reserved = reserved + $2, updated_at = $3
		WHERE owner_id = $4 AND available >= $5
	`)
	res, err := s.db.ExecContext(ctx, query, amount, amount, s.now(), ownerID, amount)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("owner %s needs %d credits: %w", ownerID, amount, storage.ErrInsufficientBalance)
	}
	return nil
}

// Release 退回预扣额度
func (s *Store) Release(ctx context.Context, ownerID string, amount int64) error {
	query := s.rebind(`
		UPDATE balances
		SET available = available + $1, reserved = reserved - $2, updated_at = $3
		WHERE owner_id = $4
	`)
	res, err := s.db.ExecContext(ctx, query, amount, amount, s.now(), ownerID)
	if err != nil {
		return err
	}
	if ok, err := affected(res); err != nil || !ok {
		if err != nil {
			return err
		}
		return storage.ErrNotFound
	}
	return nil
}

// Debit 将预扣额度转为实际消费
func (s *Store) Debit(ctx context.Context, ownerID string, amount int64) error {
	query := s.rebind(`
		UPDATE balances
		SET reserved = reserved - $1, spent = spent + $2, updated_at = $3
		WHERE owner_id = $4
	`)
	res, err := s.db.ExecContext(ctx, query, amount, amount, s.now(), ownerID)
	if err != nil {
		return err
	}
	if ok, err := affected(res); err != nil || !ok {
		if err != nil {
			return err
		}
		return storage.ErrNotFound
	}
	return nil
}

// Credit 增加可用额度（账户不存在时创建）
func (s *Store) Credit(ctx context.Context, ownerID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit: negative amount %d", amount)
	}
	query := s.rebind(`
		INSERT INTO balances (owner_id, available, reserved, spent, updated_at)
		VALUES ($1, $2, 0, 0, $3)
	` + s.dialect.UpsertConflict("owner_id", []string{
		"available = balances.available + EXCLUDED.available",
		"updated_at = EXCLUDED.updated_at",
	}))
	_, err := s.db.ExecContext(ctx, query, ownerID, amount, s.now())
	return err
}

// GetBalance 查询额度账户
func (s *Store) GetBalance(ctx context.Context, ownerID string) (*model.Balance, error) {
	query := s.rebind(`SELECT owner_id, available, reserved, spent, updated_at FROM balances WHERE owner_id = $1`)
	b := &model.Balance{}
	err := s.db.QueryRowContext(ctx, query, ownerID).Scan(&b.OwnerID, &b.Available, &b.Reserved, &b.Spent, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}
