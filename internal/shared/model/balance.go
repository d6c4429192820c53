package model

import "time"

// Balance 用户额度账户
//
// 额度流转：Available --Reserve--> Reserved --Debit--> Spent
//
//	Reserved --Release--> Available（派发失败时退回）
type Balance struct {
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Available int64     `json:"available" db:"available"`
	Reserved  int64     `json:"reserved" db:"reserved"`
	Spent     int64     `json:"spent" db:"spent"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
