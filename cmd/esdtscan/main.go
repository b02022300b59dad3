package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"esdtscan/internal/app"
	"esdtscan/internal/shutdown"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
	verbose    bool
	pretty     bool

	workers int
	refresh bool
	limit   int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "esdtscan",
		Short:         "MultiversX ESDT发行回执解释工具",
		Long:          `解释MultiversX交易回执，识别新发行的ESDT代币标识`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", ".env文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "格式化JSON输出")

	interpretCmd := &cobra.Command{
		Use:   "interpret <file>...",
		Short: "解释本地的网关响应文件，'-'表示标准输入",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInterpret,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch <hash>...",
		Short: "从网关拉取并解释交易",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	}
	fetchCmd.Flags().IntVar(&workers, "workers", 0, "工作协程数，0表示使用配置")
	fetchCmd.Flags().BoolVar(&refresh, "refresh", false, "忽略本地缓存")

	tokenCmd := &cobra.Command{
		Use:   "token <identifier>",
		Short: "查询已发现的代币",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "列出已发现的代币",
		RunE:  runTokens,
	}
	tokensCmd.Flags().IntVar(&limit, "limit", 50, "最多显示数量，0表示全部")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "查看回执统计",
		RunE:  runStats,
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "清空本地缓存与统计",
		RunE:  runReset,
	}

	rootCmd.AddCommand(interpretCmd, fetchCmd, tokenCmd, tokensCmd, statsCmd, resetCmd)
	return rootCmd
}

// setup 加载配置并创建组件，日志输出到stderr以免混入结果
func setup(opts app.Options) (*app.App, error) {
	cfg, err := app.Load(configFile, envFile)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	if verbose {
		cfg.Logging.Level = logrus.DebugLevel.String()
	}
	return app.New(cfg, opts)
}

// setupStore 只需要本地存储的命令
func setupStore() (*app.App, error) {
	a, err := setup(app.Options{NoGateway: true, NoOutput: true})
	if err != nil {
		return nil, err
	}
	if a.Store == nil {
		a.Close()
		return nil, fmt.Errorf("本地存储未启用，请设置 store.enabled")
	}
	return a, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func runInterpret(cmd *cobra.Command, args []string) error {
	a, err := setup(app.Options{NoGateway: true})
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, name := range args {
		raw, err := readInput(cmd, name)
		if err != nil {
			return fmt.Errorf("读取%s失败: %w", name, err)
		}

		result, err := a.Processor.ProcessRaw(cmd.Context(), raw)
		if err != nil {
			failed++
			a.Logger.WithError(err).WithField("file", name).Error("解释回执失败")
			continue
		}
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d/%d个文件解释失败", failed, len(args))
	}
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := setup(app.Options{Refresh: refresh})
	if err != nil {
		return err
	}

	gs := shutdown.NewGracefulShutdown(a.Config.Processor.Timeout, a.Logger)
	a.RegisterShutdown(gs)
	gs.Start()

	n := workers
	if n <= 0 {
		n = a.Config.Processor.Workers
	}

	batch, runErr := a.Processor.ProcessHashes(gs.Context(), args, n)

	gs.Shutdown()
	if err := gs.Wait(); err != nil {
		a.Logger.WithError(err).Warn("停机过程中出现错误")
	}

	if runErr != nil && batch == nil {
		return runErr
	}

	for _, e := range batch.Errors {
		a.Logger.WithError(e).Error("处理交易失败")
	}
	if err := printJSON(cmd.OutOrStdout(), batch); err != nil {
		return err
	}

	a.Logger.WithFields(logrus.Fields{
		"processed": batch.Processed,
		"issued":    batch.Issued,
		"failed":    batch.Failed,
		"cached":    batch.Cached,
		"tps":       fmt.Sprintf("%.2f", batch.ReceiptsPerSecond),
	}).Info("拉取完成")

	if runErr != nil {
		return runErr
	}
	if batch.Failed > 0 {
		return fmt.Errorf("%d/%d个交易处理失败", batch.Failed, batch.Total)
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	a, err := setupStore()
	if err != nil {
		return err
	}
	defer a.Close()

	token, err := a.Store.LookupToken(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), token)
}

func runTokens(cmd *cobra.Command, args []string) error {
	a, err := setupStore()
	if err != nil {
		return err
	}
	defer a.Close()

	tokens, err := a.Store.ListTokens(limit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), tokens)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := setupStore()
	if err != nil {
		return err
	}
	defer a.Close()

	return printJSON(cmd.OutOrStdout(), struct {
		DBPath string      `json:"dbPath"`
		Stats  interface{} `json:"stats"`
	}{
		DBPath: a.Store.GetDBPath(),
		Stats:  a.Store.Stats(),
	})
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := setupStore()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store.Reset(); err != nil {
		return fmt.Errorf("重置失败: %w", err)
	}
	a.Logger.WithField("db_path", a.Store.GetDBPath()).Info("本地缓存已清空")
	return nil
}
