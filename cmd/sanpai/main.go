package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yuqie6/Sanpai/internal/bootstrap"
	"github.com/yuqie6/Sanpai/internal/pkg/buildinfo"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/seed"
	"github.com/yuqie6/Sanpai/internal/service"
)

var (
	cfgFile string
	core    *bootstrap.Core
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sanpai",
		Short: "Sanpai - 参拜等级与排行榜管理工具",
		Long:  `sanpai 用于维护参拜服务的数据库：迁移、写入种子、手动收割周期榜单、查看等级表与调度状态。`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return
			}
			var err error
			core, err = bootstrap.NewCore(cmd.Context(), cfgFile)
			if err != nil {
				slog.Error("初始化失败", "error", err)
				os.Exit(1)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core != nil {
				_ = core.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(harvestCmd())
	rootCmd.AddCommand(levelsCmd())
	rootCmd.AddCommand(schedulerCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// mustReady 安全模式下拒绝执行写操作
func mustReady() {
	if core.Ready() {
		return
	}
	fmt.Printf("❌ 数据库处于安全模式 (schema_version=%d)\n", core.DB.SchemaVersion)
	if core.DB.MigrationError != "" {
		fmt.Printf("   %s\n", core.DB.MigrationError)
	}
	os.Exit(1)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sanpai %s (%s)\n", buildinfo.Version, buildinfo.Commit)
		},
	}
}

// migrateCmd 打开数据库即完成迁移，这里只汇报结果
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		Run: func(cmd *cobra.Command, args []string) {
			mustReady()
			fmt.Printf("✅ 迁移完成: driver=%s schema_version=%d\n", core.DB.Driver, core.DB.SchemaVersion)
		},
	}
}

// seedCmd 写入等级表、称号模板与演示数据
func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "写入种子数据（默认使用内置种子）",
		Run: func(cmd *cobra.Command, args []string) {
			mustReady()
			ctx := cmd.Context()

			path := file
			if path == "" {
				path = core.Cfg.Seed.Path
			}
			f, err := seed.Load(path)
			if err != nil {
				fmt.Printf("❌ 读取种子失败: %v\n", err)
				os.Exit(1)
			}
			rep, err := seed.Apply(ctx, core.Store, f)
			if err != nil {
				fmt.Printf("❌ 写入种子失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✅ 已写入: 等级 %d 条, 称号模板 %d 条, 地点 %d 个, 用户 %d 个\n",
				rep.Levels, rep.Titles, rep.Sites, rep.Users)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "种子 YAML 路径")
	return cmd
}

// harvestCmd 强制收割指定周期
func harvestCmd() *cobra.Command {
	var (
		period string
		date   string
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "强制收割某个周期（发放称号并清空时间窗）",
		Run: func(cmd *cobra.Command, args []string) {
			mustReady()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			kind, err := service.ParsePeriodKind(strings.TrimSpace(period))
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				os.Exit(1)
			}
			ref := time.Now().In(core.Location)
			if date != "" {
				ref, err = repository.ParseDay(date, core.Location)
				if err != nil {
					fmt.Printf("❌ %v\n", err)
					os.Exit(1)
				}
			}

			report, err := core.Services.Harvester.Harvest(ctx, kind, ref, service.HarvestOptions{Force: true})
			if err != nil {
				fmt.Printf("❌ 收割失败: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("🏆 %s 收割完成 (run %s)\n", report.Period.Label, report.RunID)
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("  • 称号: %d 个\n", report.Grants)
			fmt.Printf("  • 周榜奖励: %d 人\n", report.BonusUsers)
			fmt.Printf("  • 获得经验: %d 人, 升级 %d 人\n", report.RewardedUsers, report.LevelUps)
			if report.SkippedSubjects > 0 {
				fmt.Printf("  • ⚠️ 缺少称号模板而跳过: %d 个对象\n", report.SkippedSubjects)
			}
			fmt.Printf("  • 清空计数: %s 行\n", humanize.Comma(report.DeletedRows))
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", "", "周期 daily|weekly|monthly|yearly")
	cmd.Flags().StringVarP(&date, "date", "d", "", "周期内任意一天 (YYYY-MM-DD)，默认今天")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

// levelsCmd 打印等级表
func levelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "查看等级表",
		Run: func(cmd *cobra.Command, args []string) {
			mustReady()
			fmt.Printf("📈 等级表 (共 %d 级)\n", core.Table.MaxLevel())
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("  %-4s %10s %8s %6s %6s\n", "等级", "所需经验", "半径(米)", "遥拜", "能力点")
			for _, d := range core.Table.Definitions() {
				fmt.Printf("  %-6d %12s %10d %8d %8d\n",
					d.Level, humanize.Comma(d.RequiredExperience), d.BaseRadius, d.BaseRemoteAllowance, d.AbilityPointsGranted)
			}
		},
	}
}

// schedulerCmd 调度相关子命令
func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "收割调度",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "查看各周期的收割状态",
		Run: func(cmd *cobra.Command, args []string) {
			mustReady()
			statuses, err := core.Services.Scheduler.Status(cmd.Context())
			if err != nil {
				fmt.Printf("❌ 获取调度状态失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("⏱  收割调度 (时区 %s)\n", core.Location)
			fmt.Println("═══════════════════════════════════════")
			for _, s := range statuses {
				state := "✅ 已收割"
				if s.Pending {
					state = "⏳ 待收割"
				}
				fmt.Printf("\n[%s] 最近结束: %s (%s)  %s\n", s.Kind, s.LastCompleted.Label, s.LastCompleted.Key, state)
				if s.Latest != nil {
					fmt.Printf("  • 最新标记: %s, 称号 %d 个, %s\n",
						s.Latest.PeriodKey, s.Latest.Grants, humanize.Time(s.Latest.UpdatedAt))
				} else {
					fmt.Println("  • 尚无标记")
				}
			}
		},
	})
	return cmd
}
