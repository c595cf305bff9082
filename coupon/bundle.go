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

package coupon

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BundleContext 组合优惠计价所需的订单信息
type BundleContext struct {
	GroupSize int    // 每组件数，即券面值
	Subtotal  int64  // 商品小计
	ItemCount int    // 商品总件数
	Lines     []Line // 商品行，可为空
}

// Line 同价商品行
type Line struct {
	UnitPrice int64
	Quantity  int
}

// BundlePricer 组合优惠的金额计算规则，资格校验由 Evaluator 完成
type BundlePricer interface {
	Price(bc BundleContext) int64
}

type BundlePricerFunc func(bc BundleContext) int64

func (f BundlePricerFunc) Price(bc BundleContext) int64 {
	return f(bc)
}

// CheapestFree 每凑满一组免去一件最便宜的商品
func CheapestFree() BundlePricer {
	return BundlePricerFunc(func(bc BundleContext) int64 {
		if bc.GroupSize <= 0 || bc.ItemCount <= 0 {
			return 0
		}
		groups := bc.ItemCount / bc.GroupSize
		if len(bc.Lines) == 0 {
			// 没有明细时按均价计算
			return decimal.NewFromInt(bc.Subtotal).
				Mul(decimal.NewFromInt(int64(groups))).
				Div(decimal.NewFromInt(int64(bc.ItemCount))).
				IntPart()
		}
		lines := make([]Line, len(bc.Lines))
		copy(lines, bc.Lines)
		sort.Slice(lines, func(i, j int) bool { return lines[i].UnitPrice < lines[j].UnitPrice })

		var free int64
		for _, l := range lines {
			if groups <= 0 {
				break
			}
			if l.Quantity <= 0 {
				continue
			}
			n := l.Quantity
			if n > groups {
				n = groups
			}
			free += l.UnitPrice * int64(n)
			groups -= n
		}
		return free
	})
}

// PercentOff 满足件数后整单按比例优惠
func PercentOff(percent decimal.Decimal) BundlePricer {
	return BundlePricerFunc(func(bc BundleContext) int64 {
		return percentOf(bc.Subtotal, percent)
	})
}

// percentOf 四舍五入到最小货币单位
func percentOf(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Shift(-2).Round(0).IntPart()
}
