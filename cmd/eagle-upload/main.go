package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"eaglelink/internal/config"
	"eaglelink/internal/eagle"
	"eaglelink/internal/foldermap"
	"eaglelink/internal/imagefmt"
	"eaglelink/internal/logging"
	"eaglelink/internal/mdimage"
	"eaglelink/internal/vault"
)

type runOptions struct {
	VaultPath string
	NotePath  string
	Folder    string
	Promote   bool
	Yes       bool
}

type runStats struct {
	Uploaded int
	Failed   int
	Promoted int
	Siblings int
}

func main() {
	logging.Setup()
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func runCLI(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("eagle-upload", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var opts runOptions
	fs.StringVar(&opts.VaultPath, "vault", "", "vault root (defaults to $EAGLE_VAULT_PATH)")
	fs.StringVar(&opts.NotePath, "note", "", "vault-relative note to embed results into")
	fs.StringVar(&opts.Folder, "folder", "", "Eagle folder name (overrides mappings and config)")
	fs.BoolVar(&opts.Promote, "promote", false, "upload local images already referenced in the note")
	fs.BoolVar(&opts.Yes, "yes", false, "auto-confirm sibling link updates")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.Promote && opts.NotePath == "" {
		_, _ = fmt.Fprintln(errOut, "ERROR: --promote requires --note")
		return 2
	}
	if !opts.Promote && fs.NArg() == 0 {
		_, _ = fmt.Fprintln(errOut, "usage: eagle-upload [--vault <path>] [--note <rel.md>] [--folder <name>] [--promote] [--yes] <file>...")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	if opts.VaultPath != "" {
		cfg.VaultPath = opts.VaultPath
	}
	if cfg.VaultPath == "" {
		_, _ = fmt.Fprintln(errOut, "ERROR: vault path is required (--vault or EAGLE_VAULT_PATH)")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := vault.Open(cfg.VaultPath)
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	client := eagle.NewClient(&cfg)
	uploader := eagle.NewUploader(&cfg, client, store)

	var stats runStats
	if opts.Promote {
		stats, err = promoteLocalImages(ctx, &cfg, store, uploader, opts, fs.Args(), out, errOut)
	} else {
		stats, err = uploadFiles(ctx, &cfg, store, uploader, opts, fs.Args(), out, errOut)
	}
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(out, "uploaded=%d failed=%d promoted=%d sibling_links=%d\n",
		stats.Uploaded, stats.Failed, stats.Promoted, stats.Siblings)
	if stats.Failed > 0 {
		return 1
	}
	return 0
}

// folderFor picks the Eagle folder for an upload: explicit flag first,
// then mapping rules keyed by the note's location. Empty defers to the
// configured default inside the uploader.
func folderFor(cfg *config.Config, opts runOptions) string {
	if opts.Folder != "" {
		return opts.Folder
	}
	if opts.NotePath != "" {
		if mapped, ok := foldermap.Resolve(opts.NotePath, cfg.Mappings); ok {
			return mapped
		}
	}
	return ""
}

// readAsset loads an upload argument from the filesystem; such files
// may live outside the vault.
func readAsset(p string) (imagefmt.Asset, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return imagefmt.Asset{}, fmt.Errorf("read %s: %w", p, err)
	}
	return assetFor(filepath.Base(p), data), nil
}

// readVaultAsset loads a vault-resident image through the note store.
func readVaultAsset(store *vault.Vault, rel string) (imagefmt.Asset, error) {
	data, err := store.ReadBinary(rel)
	if err != nil {
		return imagefmt.Asset{}, err
	}
	return assetFor(path.Base(rel), data), nil
}

func assetFor(name string, data []byte) imagefmt.Asset {
	return imagefmt.Asset{
		Name:     name,
		MimeType: imagefmt.MimeTypeForExtension(imagefmt.ExtractExtension(name)),
		Data:     data,
	}
}

// uploadFiles sends each file to Eagle. With --note the note first
// gains a placeholder per file, later swapped for the real embed or a
// failure comment, so an open editor sees upload progress.
func uploadFiles(ctx context.Context, cfg *config.Config, store *vault.Vault, uploader *eagle.Uploader, opts runOptions, files []string, out io.Writer, errOut io.Writer) (runStats, error) {
	var stats runStats
	folder := folderFor(cfg, opts)

	for _, file := range files {
		asset, err := readAsset(file)
		if err != nil {
			return stats, err
		}

		placeholderID := ""
		if opts.NotePath != "" {
			placeholderID = vault.NewPlaceholderID()
			content, err := store.ReadNote(opts.NotePath)
			if err != nil {
				return stats, err
			}
			if content != "" && !strings.HasSuffix(content, "\n") {
				content += "\n"
			}
			content = vault.InsertPlaceholder(content, len(content), placeholderID) + "\n"
			if err := store.WriteNote(opts.NotePath, content); err != nil {
				return stats, err
			}
		}

		result, uploadErr := uploader.Upload(ctx, asset, eagle.UploadOptions{FolderName: folder})

		if opts.NotePath != "" {
			replacement := ""
			if uploadErr != nil {
				replacement = vault.FailureCommentFor(uploadErr.Error())
			} else {
				replacement = vault.EmbedFor(result.ItemID, result.FileURL)
			}
			content, err := store.ReadNote(opts.NotePath)
			if err != nil {
				return stats, err
			}
			updated, replaced := vault.ReplaceFirstOccurrence(content, vault.PlaceholderFor(placeholderID), replacement)
			if replaced {
				if err := store.WriteNote(opts.NotePath, updated); err != nil {
					return stats, err
				}
			}
		}

		if uploadErr != nil {
			stats.Failed++
			_, _ = fmt.Fprintf(errOut, "ERROR: upload %s: %v\n", file, uploadErr)
			continue
		}
		stats.Uploaded++
		if opts.NotePath == "" {
			_, _ = fmt.Fprintln(out, vault.EmbedFor(result.ItemID, result.FileURL))
		} else {
			_, _ = fmt.Fprintf(out, "embedded %s (id=%s) into %s\n", asset.Name, result.ItemID, opts.NotePath)
		}
	}

	return stats, nil
}

// promoteLocalImages uploads images a note references by local path,
// comments out the original embeds, and inserts remote embeds in their
// place. Sibling notes referencing the same local paths are then
// offered the same rewrite.
func promoteLocalImages(ctx context.Context, cfg *config.Config, store *vault.Vault, uploader *eagle.Uploader, opts runOptions, links []string, out io.Writer, errOut io.Writer) (runStats, error) {
	var stats runStats
	folder := folderFor(cfg, opts)

	content, err := store.ReadNote(opts.NotePath)
	if err != nil {
		return stats, err
	}

	wanted := make(map[string]struct{}, len(links))
	for _, l := range links {
		wanted[strings.TrimSpace(l)] = struct{}{}
	}

	var targets []mdimage.Token
	for _, tok := range mdimage.Scan(content) {
		if !isLocalLink(tok.Link) {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[tok.Link]; !ok {
				continue
			}
		}
		targets = append(targets, tok)
	}
	if len(targets) == 0 {
		_, _ = fmt.Fprintln(out, "No local image links to promote.")
		return stats, nil
	}

	// Replacements run back to front so earlier offsets stay valid.
	promoted := make(map[string]string)
	for i := len(targets) - 1; i >= 0; i-- {
		tok := targets[i]
		rel, err := resolveLocalAsset(store, opts.NotePath, tok.Link)
		if err != nil {
			stats.Failed++
			_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
			continue
		}
		asset, err := readVaultAsset(store, rel)
		if err != nil {
			stats.Failed++
			_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
			continue
		}

		result, err := uploader.Upload(ctx, asset, eagle.UploadOptions{FolderName: folder})
		if err != nil {
			stats.Failed++
			_, _ = fmt.Fprintf(errOut, "ERROR: upload %s: %v\n", tok.Link, err)
			continue
		}
		stats.Uploaded++
		stats.Promoted++

		embed := vault.EmbedFor(result.ItemID, result.FileURL)
		replacement := "<!--" + content[tok.Start:tok.End] + "-->\n" + embed
		content = content[:tok.Start] + replacement + content[tok.End:]
		promoted[tok.Link] = embed
		_, _ = fmt.Fprintf(out, "promoted %s (id=%s)\n", tok.Link, result.ItemID)
	}
	if len(promoted) == 0 {
		return stats, nil
	}

	if err := store.WriteNote(opts.NotePath, content); err != nil {
		return stats, err
	}

	siblings, err := updateSiblingLinks(store, opts, promoted, out)
	if err != nil {
		return stats, err
	}
	stats.Siblings = siblings
	return stats, nil
}

// updateSiblingLinks rewrites other notes that embed the same local
// paths, after a confirmation prompt.
func updateSiblingLinks(store *vault.Vault, opts runOptions, promoted map[string]string, out io.Writer) (int, error) {
	notes, err := store.ListNotes()
	if err != nil {
		return 0, err
	}

	type pending struct {
		path    string
		content string
		tokens  []mdimage.Token
	}
	var docs []pending
	total := 0
	for _, note := range notes {
		if note == opts.NotePath {
			continue
		}
		content, err := store.ReadNote(note)
		if err != nil {
			return 0, err
		}
		var hits []mdimage.Token
		for _, tok := range mdimage.Scan(content) {
			if _, ok := promoted[tok.Link]; ok {
				hits = append(hits, tok)
			}
		}
		if len(hits) > 0 {
			docs = append(docs, pending{path: note, content: content, tokens: hits})
			total += len(hits)
		}
	}
	if total == 0 {
		return 0, nil
	}

	if !opts.Yes {
		ok, err := promptYesNo(fmt.Sprintf("Update %d links in %d other files? [y/N]: ", total, len(docs)))
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
	}

	updated := 0
	for _, d := range docs {
		content := d.content
		for i := len(d.tokens) - 1; i >= 0; i-- {
			tok := d.tokens[i]
			content = content[:tok.Start] + promoted[tok.Link] + content[tok.End:]
			updated++
		}
		if err := store.WriteNote(d.path, content); err != nil {
			return updated, err
		}
		_, _ = fmt.Fprintf(out, "updated %s (%d links)\n", d.path, len(d.tokens))
	}
	return updated, nil
}

func isLocalLink(link string) bool {
	if link == "" {
		return false
	}
	for _, scheme := range []string{"http://", "https://", "file://", "eagle://", "data:"} {
		if strings.HasPrefix(link, scheme) {
			return false
		}
	}
	return imagefmt.IsLikelyImage(link, "")
}

// resolveLocalAsset finds the vault-relative file a note link points
// at, falling back to a vault-root lookup the way wiki-style links
// resolve.
func resolveLocalAsset(store *vault.Vault, notePath, link string) (string, error) {
	decoded := link
	if u, err := url.PathUnescape(link); err == nil {
		decoded = u
	}

	noteDir := path.Dir(notePath)
	candidates := []string{path.Join(noteDir, decoded), decoded}
	for _, rel := range candidates {
		full, err := store.AbsPath(rel)
		if err != nil {
			continue
		}
		if _, err := os.Stat(full); err == nil {
			return rel, nil
		}
	}
	return "", fmt.Errorf("local image not found: %s", link)
}

func promptYesNo(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal (use --yes to auto-confirm)")
	}
	fmt.Fprint(os.Stderr, prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes", nil
}
