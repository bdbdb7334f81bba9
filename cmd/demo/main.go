package main

import (
	"context"
	"fmt"
	"log"

	"github.com/kasuganosora/reactivesql/pkg/config"
	"github.com/kasuganosora/reactivesql/pkg/ivm"
	"github.com/kasuganosora/reactivesql/pkg/store"
)

// 一个井字棋胜负判定的演示：按行、按列各自分组计数，
// 两条分支 union 到一起，再用 Where 过滤出某一方占满的那条线（不检查对角线）。
func main() {
	cfg := config.DefaultConfig()
	gw, err := store.NewGateway(cfg)
	if err != nil {
		log.Fatal("打开 StoreGateway 失败:", err)
	}
	defer gw.Close()

	db := ivm.NewDatabase(gw)
	ctx := context.Background()

	db.DeclareTable("cells", []store.ColumnDef{
		{Name: "row", Type: store.TypeInteger},
		{Name: "col", Type: store.TypeInteger},
		{Name: "mark", Type: store.TypeText},
	})
	cells, err := db.Table(ctx, "cells")
	if err != nil {
		log.Fatal("打开 cells 表失败:", err)
	}

	rowLines := cells.GroupBy("row", "mark").Count().Build().Select("mark", "count")
	colLines := cells.GroupBy("col", "mark").Count().Build().Select("mark", "count")
	lines, err := rowLines.Union(colLines)
	if err != nil {
		log.Fatal("构建 union 视图失败:", err)
	}
	winners := lines.Where("count = 3")

	winners.OnInsert(func(row ivm.Row, _ int) {
		fmt.Printf("%s 获胜！\n", row.Get("mark"))
	})

	fmt.Println("井字棋响应式视图演示")
	fmt.Println("逐格落子，观察 winners 视图何时触发 insert：")

	moves := []store.Values{
		{"row": 0, "col": 0, "mark": "X"},
		{"row": 1, "col": 0, "mark": "O"},
		{"row": 0, "col": 1, "mark": "X"},
		{"row": 1, "col": 1, "mark": "O"},
		{"row": 0, "col": 2, "mark": "X"},
	}
	for _, mv := range moves {
		if err := cells.Insert(ctx, mv, false); err != nil {
			log.Fatal("落子失败:", err)
		}
		fmt.Printf("落子 row=%v col=%v mark=%v\n", mv["row"], mv["col"], mv["mark"])
	}
}
