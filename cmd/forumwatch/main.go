package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"forumsync/internal/client"
	"forumsync/internal/events"
	"forumsync/internal/services"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
)

const ForumWatchVersion = "0.1.0"

func main() {
	usage := `Forum watch.

Follows the forum event stream and prints the reconciled post list after every
change. The other commands perform one mutation and exit.

The default server is http://localhost:5000.

Usage:
    forumwatch watch [--server=<url>] [--sort=<by>] [--search=<q>]
        [--post=<id>] [--name=<name>]
    forumwatch create [--server=<url>] <title> <content> [--author=<name>]
    forumwatch reply [--server=<url>] <id> <content> [--author=<name>]
    forumwatch upvote [--server=<url>] <id>
    forumwatch answered [--server=<url>] <id> [--set=<bool>]
    forumwatch delete [--server=<url>] <id>
    forumwatch -h | --help
    forumwatch --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --server=<url>     Forum server base url [default: http://localhost:5000].
    --sort=<by>        votes or date [default: votes].
    --search=<q>       Only list posts matching this text.
    --post=<id>        Also follow this post and its replies.
    --name=<name>      Announce yourself with this name.
    --author=<name>    Author for new posts and replies.
    --set=<bool>       Set answered to true or false instead of toggling.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ForumWatchVersion)
	if err != nil {
		panic(err)
	}

	// glog 只写 stderr
	_ = flag.CommandLine.Parse([]string{"-logtostderr"})
	defer glog.Flush()

	server, _ := opts.String("--server")
	api, err := client.New(server, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(ctx, api, opts)
	} else if create_, _ := opts.Bool("create"); create_ {
		err = create(ctx, api, opts)
	} else if reply_, _ := opts.Bool("reply"); reply_ {
		err = reply(ctx, api, opts)
	} else if upvote_, _ := opts.Bool("upvote"); upvote_ {
		err = upvote(ctx, api, opts)
	} else if answered_, _ := opts.Bool("answered"); answered_ {
		err = answered(ctx, api, opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		err = deletePost(ctx, api, opts)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func watch(ctx context.Context, api *client.Client, opts docopt.Opts) error {
	sortBy, _ := opts.String("--sort")
	search, _ := opts.String("--search")
	postID, _ := opts.String("--post")
	name, _ := opts.String("--name")

	s := client.NewSync(api)
	s.Query = client.ListOptions{SortBy: sortBy, Search: search}
	s.Username = name
	s.OnChange = func() { printState(s) }
	s.OnSignal = func(m events.Message) {
		if m.Type == events.KindUserTyping {
			fmt.Printf("* someone is typing: %s\n", string(m.Data))
		}
	}

	if err := s.Refresh(ctx); err != nil {
		return err
	}
	if postID != "" {
		if err := s.Open(ctx, postID); err != nil {
			return err
		}
	}
	s.Run(ctx)
	return nil
}

func printState(s *client.Sync) {
	var b strings.Builder
	stats := s.Store.Stats()
	fmt.Fprintf(&b, "\n== %s  total %d  answered %d  pending %d\n",
		time.Now().Format("15:04:05"), stats.Total, stats.Answered, stats.Pending)
	for _, p := range s.Store.Posts() {
		mark := " "
		if p.Answered {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%s %4d▲ %3d💬  %s  %s (%s)\n", mark, p.Votes, p.ReplyCount, p.ID, p.Title, p.Author)
	}
	if sel := s.Store.Selected(); sel != nil {
		fmt.Fprintf(&b, "-- %s by %s\n%s\n", sel.Title, sel.Author, sel.Content)
		for _, r := range sel.Replies {
			fmt.Fprintf(&b, "   > %s: %s\n", r.Author, r.Content)
		}
	}
	for _, n := range s.Notices.Active() {
		fmt.Fprintf(&b, "[%s] %s\n", n.Level, n.Text)
	}
	fmt.Print(b.String())
}

func create(ctx context.Context, api *client.Client, opts docopt.Opts) error {
	title, _ := opts.String("<title>")
	content, _ := opts.String("<content>")
	author, _ := opts.String("--author")
	post, err := api.CreatePost(ctx, services.CreatePostInput{Title: title, Content: content, Author: author})
	if err != nil {
		return err
	}
	fmt.Println(post.ID)
	return nil
}

func reply(ctx context.Context, api *client.Client, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	content, _ := opts.String("<content>")
	author, _ := opts.String("--author")
	r, err := api.AddReply(ctx, id, services.AddReplyInput{Content: content, Author: author})
	if err != nil {
		return err
	}
	fmt.Println(r.ID)
	return nil
}

func upvote(ctx context.Context, api *client.Client, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	post, err := api.Upvote(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d\n", post.ID, post.Votes)
	return nil
}

func answered(ctx context.Context, api *client.Client, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	var value *bool
	if raw, err := opts.String("--set"); err == nil && raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid --set value %q", raw)
		}
		value = &b
	}
	post, err := api.SetAnswered(ctx, id, value)
	if err != nil {
		return err
	}
	fmt.Printf("%s answered=%t\n", post.ID, post.Answered)
	return nil
}

func deletePost(ctx context.Context, api *client.Client, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	if err := api.DeletePost(ctx, id); err != nil {
		return err
	}
	fmt.Println("Post deleted successfully")
	return nil
}
