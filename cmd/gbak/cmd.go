package gbak

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/qqgroup/go-group-backup/internal/backup"
)

// command 子命令, args 不含命令名
type command func(ctx context.Context, svc *backup.Service, out io.Writer, args []string) error

var commands = map[string]command{
	"backup":  cmdBackup,
	"export":  cmdExport,
	"archive": cmdArchive,
	"restore": cmdRestore,
	"delete":  cmdDelete,
	"log":     cmdLog,
}

// Run 执行子命令
func Run(ctx context.Context, svc *backup.Service, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("未指定命令")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return errors.Errorf("未知命令: %s", args[0])
	}
	return cmd(ctx, svc, out, args[1:])
}

func parseGroup(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("无效的群号: %q", s)
	}
	return id, nil
}

// parseArgs 解析形如 <group> [-flag v] 的参数, 位置参数可以出现在 flag 之前
func parseArgs(fs *flag.FlagSet, args []string, positional int) ([]int64, error) {
	fs.SetOutput(io.Discard)
	var pos []string
	for len(args) > 0 {
		if !strings.HasPrefix(args[0], "-") || args[0] == "-" {
			pos = append(pos, args[0])
			args = args[1:]
			continue
		}
		if err := fs.Parse(args); err != nil {
			return nil, errors.Wrap(err, "参数错误")
		}
		args = fs.Args()
	}
	if positional >= 0 && len(pos) != positional {
		return nil, errors.Errorf("需要 %d 个群号, 得到 %d 个", positional, len(pos))
	}
	if len(pos) == 0 {
		return nil, errors.New("未指定群号")
	}
	ids := make([]int64, 0, len(pos))
	for _, p := range pos {
		id, err := parseGroup(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func cmdBackup(ctx context.Context, svc *backup.Service, out io.Writer, args []string) error {
	ids, err := parseArgs(flag.NewFlagSet("backup", flag.ContinueOnError), args, -1)
	if err != nil {
		return err
	}
	failed := 0
	for _, id := range ids {
		report, err := svc.Backup(ctx, id)
		if err != nil {
			log.Errorf("备份群 %d 失败: %v", id, err)
			failed++
			continue
		}
		_, _ = fmt.Fprintf(out, "群 %s(%d) 备份成功: 成员 %d, 公告 %d, 精华 %d, 相册 %d, 媒体 %d, 新下载 %d 个文件 (%s), 变更 %d 条\n",
			report.GroupName, id, report.Members, report.Notices, report.Essence, report.Albums, report.Media,
			report.Downloaded, humanize.Bytes(uint64(report.DownloadBytes)), len(report.Events))
		if report.First {
			_, _ = fmt.Fprintln(out, "  首次备份, 已建立基准快照")
		}
		for _, e := range report.Events {
			_, _ = fmt.Fprintf(out, "  %s\n", describe(e.Kind.String(), e.SubjectID, e.OldValue, e.NewValue))
		}
		for _, w := range report.Warnings {
			_, _ = fmt.Fprintf(out, "  [警告] %s\n", w)
		}
	}
	if failed > 0 {
		return errors.Errorf("%d 个群备份失败", failed)
	}
	return nil
}

func cmdExport(ctx context.Context, svc *backup.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	output := fs.String("o", "", "输出文件")
	toGroup := fs.Int64("to-group", 0, "上传到群文件")
	toUser := fs.Int64("to-user", 0, "发送给好友")
	ids, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	data, name, err := svc.Export(ctx, ids[0])
	if err != nil {
		return err
	}
	if *toGroup != 0 || *toUser != 0 {
		if err := svc.Send(ctx, backup.Target{GroupID: *toGroup, UserID: *toUser}, name, data); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "导出成功, 已发送 %s\n", name)
		if *output == "" {
			return nil
		}
	}
	if *output == "" {
		*output = name
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return errors.Wrap(err, "写入导出文件失败")
	}
	_, _ = fmt.Fprintf(out, "导出成功: %s (%s)\n", *output, humanize.Bytes(uint64(len(data))))
	return nil
}

func cmdArchive(_ context.Context, svc *backup.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	output := fs.String("o", "", "输出文件")
	ids, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	if *output == "" {
		*output = backup.ZipFileName(ids[0])
	}
	file, err := os.Create(*output)
	if err != nil {
		return errors.Wrap(err, "创建打包文件失败")
	}
	n, err := svc.Zip(ids[0], file)
	if err == nil {
		err = errors.Wrap(file.Sync(), "写入打包文件失败")
	}
	size := int64(0)
	if stat, serr := file.Stat(); serr == nil {
		size = stat.Size()
	}
	if cerr := file.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "写入打包文件失败")
	}
	if err != nil {
		_ = os.Remove(*output)
		return err
	}
	_, _ = fmt.Fprintf(out, "打包成功: %s, 共 %d 个文件 (%s)\n", *output, n, humanize.Bytes(uint64(size)))
	return nil
}

func cmdRestore(ctx context.Context, svc *backup.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fields := fs.String("fields", "", "要恢复的字段, 逗号分隔")
	ids, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	var list []string
	for _, f := range strings.Split(*fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			list = append(list, f)
		}
	}
	ret, err := svc.Restore(ctx, ids[0], ids[1], list)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "已将群 %d 的备份恢复到群 %d: 群名称 %v, 群头像 %v, 公告 %d 条, 群名片 %d 个\n",
		ret.Source, ret.Target, ret.Name, ret.Avatar, ret.Notices, ret.Cards)
	for field, err := range ret.Errors {
		_, _ = fmt.Fprintf(out, "  [失败] %s: %v\n", field, err)
	}
	return nil
}

func cmdDelete(_ context.Context, svc *backup.Service, out io.Writer, args []string) error {
	ids, err := parseArgs(flag.NewFlagSet("delete", flag.ContinueOnError), args, 1)
	if err != nil {
		return err
	}
	if err := svc.Delete(ids[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "已删除群 %d 的全部备份\n", ids[0])
	return nil
}

func cmdLog(_ context.Context, svc *backup.Service, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	sinceStr := fs.String("since", "", "起始日期 (2006-01-02)")
	ids, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	var since time.Time
	if *sinceStr != "" {
		since, err = time.ParseInLocation("2006-01-02", *sinceStr, time.Local)
		if err != nil {
			return errors.Wrapf(err, "无效的日期 %q", *sinceStr)
		}
	}
	events, err := svc.History(ids[0], since)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		_, _ = fmt.Fprintln(out, "没有变更记录")
		return nil
	}
	for _, e := range events {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", e.OccurredAt.Local().Format("2006-01-02 15:04:05"),
			describe(e.Kind.String(), e.SubjectID, e.OldValue, e.NewValue))
	}
	return nil
}

func describe(kind, subject, oldValue, newValue string) string {
	switch {
	case oldValue != "" && newValue != "":
		return fmt.Sprintf("%s %s: %s -> %s", kind, subject, oldValue, newValue)
	case oldValue != "":
		return fmt.Sprintf("%s %s (%s)", kind, subject, oldValue)
	case newValue != "":
		return fmt.Sprintf("%s %s (%s)", kind, subject, newValue)
	default:
		return kind + " " + subject
	}
}
