//
// Copyright 2023 Bytedance Ltd. and/or its affiliates
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"time"
)

// LockRecord 一个资源一行，Owner 用于防止误解他人持有的锁
type LockRecord struct {
	ID        uint   `gorm:"primarykey;AUTO_INCREMENT"`
	Resource  string `gorm:"type:varchar(255);unique"`
	Owner     string `gorm:"type:varchar(64);index:idx_lock_owner"`
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (LockRecord) TableName() string {
	return "ordercore_locks"
}
