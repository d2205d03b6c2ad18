package commands

import (
	"fmt"
	"net/http"

	"p2p_trade/internal/model"
	"p2p_trade/internal/service/attachment"

	"github.com/spf13/cobra"
)

// attachment: fetch an encrypted blob by url without going through a transcript.
func attachmentCmd() *cobra.Command {
	var key, name, dir string
	cmd := &cobra.Command{
		Use:   "attachment <blossom-or-https-url>",
		Short: "Download and decrypt an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := attachment.NewFetcher(&http.Client{})
			f.MaxBytes = cfg.Attachment.MaxBytes
			f.Timeout = cfg.Attachment.Timeout
			if dir == "" {
				dir = cfg.Attachment.DownloadDir
			}

			path, err := f.Download(cmd.Context(), &model.Attachment{
				Type:     model.AttachmentFile,
				URL:      args[0],
				Key:      key,
				Filename: name,
			}, dir)
			if err != nil {
				return err
			}
			fmt.Println("saved", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hex decryption key, empty when the blob is not encrypted")
	cmd.Flags().StringVar(&name, "name", "", "file name to save as")
	cmd.Flags().StringVar(&dir, "dir", "", "directory to save into")
	return cmd
}
