// ABOUTME: Response shapes that pair stored content with its rendered HTML
// ABOUTME: Rendering resolves leftover placeholders leniently, then sanitizes

package api

import (
	"github.com/2389/chorale/internal/content"
	"github.com/2389/chorale/internal/store"
)

type postView struct {
	store.Post
	ContentHTML string `json:"contentHtml"`
}

func newPostView(p *store.Post) postView {
	return postView{Post: *p, ContentHTML: content.RenderHTML(p.Content, p.Attachments)}
}

func newPostViews(posts []store.Post) []postView {
	views := make([]postView, 0, len(posts))
	for i := range posts {
		views = append(views, newPostView(&posts[i]))
	}
	return views
}

type commentView struct {
	store.Comment
	ContentHTML string `json:"contentHtml"`
}

func newCommentView(c *store.Comment) commentView {
	return commentView{Comment: *c, ContentHTML: content.RenderHTML(c.Content, c.Attachments)}
}

func newCommentViews(comments []store.Comment) []commentView {
	views := make([]commentView, 0, len(comments))
	for i := range comments {
		views = append(views, newCommentView(&comments[i]))
	}
	return views
}

type sheetMusicView struct {
	store.SheetMusic
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
}

func newSheetMusicView(m *store.SheetMusic) sheetMusicView {
	v := sheetMusicView{SheetMusic: *m}
	if m.Description != "" {
		v.DescriptionHTML = content.RenderMarkdown(m.Description)
	}
	return v
}

func newSheetMusicViews(items []store.SheetMusic) []sheetMusicView {
	views := make([]sheetMusicView, 0, len(items))
	for i := range items {
		views = append(views, newSheetMusicView(&items[i]))
	}
	return views
}

type chatView struct {
	store.ChatMessage
	ContentHTML string `json:"contentHtml"`
}

func newChatViews(msgs []store.ChatMessage) []chatView {
	views := make([]chatView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, chatView{ChatMessage: m, ContentHTML: content.RenderMarkdown(m.Content)})
	}
	return views
}
