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

package sql

import (
	"context"
	"reflect"
	"sync"

	"gorm.io/gorm/schema"
)

var (
	schemaCache = &sync.Map{}
	naming      = schema.NamingStrategy{IdentifierMaxLength: 64}
)

// DiffModel 返回 curr 相对 prev 发生变化的列名，主键不参与比较
// 列名与 gorm 解析出的一致，embedded 字段带前缀，serializer 字段按原值比较
func DiffModel(curr, prev interface{}) []string {
	cv, pv := reflect.Indirect(reflect.ValueOf(curr)), reflect.Indirect(reflect.ValueOf(prev))
	if cv.Kind() != reflect.Struct || cv.Type() != pv.Type() {
		return nil
	}
	sch, err := schema.Parse(curr, schemaCache, naming)
	if err != nil {
		return nil
	}

	ctx := context.Background()
	cols := make([]string, 0)
	for _, f := range sch.Fields {
		if f.DBName == "" || f.PrimaryKey {
			continue
		}
		a := f.ReflectValueOf(ctx, cv).Interface()
		b := f.ReflectValueOf(ctx, pv).Interface()
		if !reflect.DeepEqual(a, b) {
			cols = append(cols, f.DBName)
		}
	}
	return cols
}
