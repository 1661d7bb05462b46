package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"serotonyl.ru/rewards-ledger/internal/features/social"
)

// postsFile — формат файла целевых постов.
//
//	posts:
//	  - post_id: "1790000000000000000"
//	    url: https://x.com/acme/status/1790000000000000000
//	    like_points: 5
//	deactivate: ["1780000000000000000"]
//
// Не указанные баллы берутся из настроек сервера.
type postsFile struct {
	Posts      []yaml.Node `yaml:"posts"`
	Deactivate []string    `yaml:"deactivate"`
}

// loadPosts читает файл и накладывает каждую запись на пост по умолчанию.
func loadPosts(ctx context.Context, r io.Reader, svc *social.Service, tenantID string) ([]*social.TargetPost, []string, error) {
	var f postsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, nil, WrapExitError(ExitCommandError, "некорректный YAML", err)
	}

	posts := make([]*social.TargetPost, 0, len(f.Posts))
	for i := range f.Posts {
		p, err := svc.DefaultTargetPost(ctx, tenantID, "")
		if err != nil {
			return nil, nil, err
		}
		if err := f.Posts[i].Decode(p); err != nil {
			return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("пост #%d", i+1), err)
		}
		p.TenantID = tenantID
		posts = append(posts, p)
	}
	return posts, f.Deactivate, nil
}

func newSocialCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "social",
		Short: "Действия в соцсети и целевые посты",
	}
	postsCmd := &cobra.Command{
		Use:   "posts",
		Short: "Целевые посты сервера",
	}

	var tenantID string
	importCmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Загрузить целевые посты из YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "не удалось открыть файл", err)
			}
			defer file.Close()

			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				posts, deactivate, err := loadPosts(ctx, file, env.Services.Social, tenantID)
				if err != nil {
					return err
				}
				for _, post := range posts {
					if err := env.Services.Social.UpsertTargetPost(ctx, post); err != nil {
						return fmt.Errorf("пост %s: %w", post.PostID, err)
					}
				}
				off := 0
				for _, id := range deactivate {
					changed, err := env.Services.Social.DeactivateTargetPost(ctx, tenantID, id)
					if err != nil {
						return fmt.Errorf("пост %s: %w", id, err)
					}
					if changed {
						off++
					}
				}
				data := map[string]int{"upserted": len(posts), "deactivated": off}
				return p.ok(data, func(w io.Writer) {
					fmt.Fprintf(w, "Сохранено постов: %d, выключено: %d\n", len(posts), off)
				})
			})
		},
	}
	importCmd.Flags().StringVar(&tenantID, "server", "", "ID сервера или global (обязательно)")
	_ = importCmd.MarkFlagRequired("server")

	var listTenant string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Активные посты сервера вместе с глобальными",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				posts, err := env.Services.Social.TargetPosts(ctx, listTenant)
				if err != nil {
					return err
				}
				return p.ok(posts, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ПОСТ\tСЕРВЕР\tЛАЙК\tРЕТВИТ\tОТВЕТ\tВСЕ ТРИ")
					for _, post := range posts {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", post.PostID, post.TenantID,
							post.LikePoints, post.RetweetPoints, post.ReplyPoints, post.TripleBonusPoints)
					}
					_ = tw.Flush()
				})
			})
		},
	}
	listCmd.Flags().StringVar(&listTenant, "server", "", "ID сервера (обязательно)")
	_ = listCmd.MarkFlagRequired("server")

	postsCmd.AddCommand(importCmd, listCmd)
	cmd.AddCommand(postsCmd)
	return cmd
}
