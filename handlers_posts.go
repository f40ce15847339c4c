package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/blogapi/internal/auth"
	"github.com/gorilla/mux"
)

// pathID parses a numeric route variable. Routes constrain the variables to
// digits, so failure here only means overflow or a zero id.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

func (in *postRequest) valid() bool {
	return strings.TrimSpace(in.Title) != "" && strings.TrimSpace(in.Content) != ""
}

func (a *App) HandleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := a.DB.ListPosts(r.Context())
	if err != nil {
		a.serverError(w, r, "list posts", err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (a *App) HandleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Post not found")
		return
	}
	post, err := a.DB.GetPostByID(r.Context(), id)
	if err != nil {
		a.serverError(w, r, "get post", err)
		return
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (a *App) HandleListUserPosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userId")
	if !ok {
		writeJSON(w, http.StatusOK, []*Post{})
		return
	}
	posts, err := a.DB.ListPostsByUser(r.Context(), userID)
	if err != nil {
		a.serverError(w, r, "list user posts", err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (a *App) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())

	var in postRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if !in.valid() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Title and content are required")
		return
	}

	id, err := a.DB.CreatePost(r.Context(), who.ID, in.Title, in.Content)
	if err != nil {
		a.serverError(w, r, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Post created successfully",
		"postId":  id,
	})
}

func (a *App) HandleUpdatePost(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())

	var in postRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if !in.valid() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Title and content are required")
		return
	}

	post, ok := a.ownedPost(w, r, who, "Not authorized to update this post")
	if !ok {
		return
	}

	if err := a.DB.UpdatePost(r.Context(), post.ID, in.Title, in.Content); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Post not found")
			return
		}
		a.serverError(w, r, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post updated successfully"})
}

func (a *App) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())

	post, ok := a.ownedPost(w, r, who, "Not authorized to delete this post")
	if !ok {
		return
	}

	if err := a.DB.DeletePost(r.Context(), post.ID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Post not found")
			return
		}
		a.serverError(w, r, "delete post", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}

// ownedPost loads the post named by the id route variable and checks that who
// owns it. It writes the 404 or 403 response itself and reports false then.
func (a *App) ownedPost(w http.ResponseWriter, r *http.Request, who auth.Identity, denied string) (*Post, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Post not found")
		return nil, false
	}
	post, err := a.DB.GetPostByID(r.Context(), id)
	if err != nil {
		a.serverError(w, r, "get post", err)
		return nil, false
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Post not found")
		return nil, false
	}
	if err := auth.AuthorizeOwner(post.UserID, who); err != nil {
		a.Metrics.AuthEvents.WithLabelValues("ownership", "denied").Inc()
		writeError(w, http.StatusForbidden, "FORBIDDEN", denied)
		return nil, false
	}
	return post, true
}

func (a *App) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	a.Log.ErrorContext(r.Context(), op+" failed", "error", err)
	writeServerError(w)
}
