/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubtest provides an in-memory fake of the git-hosting API
// subset used by translationflow: refs, commits, trees, blobs, contents,
// comparisons, pull requests, labels, reviews and the GraphQL pull request
// query. It records every request and supports failure injection per
// operation.
package githubtest

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
)

// Operation names accepted by Fail, Before and Count.
const (
	OpListPulls    = "list-pulls"
	OpCreatePull   = "create-pull"
	OpCreateReview = "create-review"
	OpGetRef       = "get-ref"
	OpCreateRef    = "create-ref"
	OpUpdateRef    = "update-ref"
	OpGetCommit    = "get-commit"
	OpCreateCommit = "create-commit"
	OpCreateBlob   = "create-blob"
	OpCreateTree   = "create-tree"
	OpGetContents  = "get-contents"
	OpPutContents  = "put-contents"
	OpCompare      = "compare"
	OpAddLabels    = "add-labels"
	OpRemoveLabel  = "remove-label"
	OpCreateLabel  = "create-label"
	OpGraphQL      = "graphql"
	OpRaw          = "raw"
)

// Request is a recorded inbound request.
type Request struct {
	Op            string
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	Body          []byte
}

// Review is a recorded pull request review.
type Review struct {
	Event string
	Body  string
}

// PullRequest is a snapshot of a fake pull request.
type PullRequest struct {
	Number  int
	Title   string
	Head    string
	Base    string
	State   string
	Labels  []string
	Reviews []Review
}

type commit struct {
	sha     string
	tree    string
	message string
	parents []string
}

type failure struct {
	status  int
	message string
}

// Server is a fake git-hosting API for a single repository.
type Server struct {
	Owner string
	Repo  string

	srv *httptest.Server

	mu       sync.Mutex
	refs     map[string]string
	commits  map[string]*commit
	trees    map[string]map[string]string
	blobs    map[string][]byte
	pulls    []*PullRequest
	labels   map[string]bool
	failures map[string]failure
	hooks    map[string]func()
	requests []Request
	seq      int
}

// New starts a fake server for octo/traduction, closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Owner:    "octo",
		Repo:     "traduction",
		refs:     map[string]string{},
		commits:  map[string]*commit{},
		trees:    map[string]map[string]string{},
		blobs:    map[string][]byte{},
		labels:   map[string]bool{},
		failures: map[string]failure{},
		hooks:    map[string]func(){},
	}

	mux := http.NewServeMux()
	repo := "/repos/{owner}/{repo}"
	mux.HandleFunc("GET "+repo+"/pulls", s.handle(OpListPulls, s.listPulls))
	mux.HandleFunc("POST "+repo+"/pulls", s.handle(OpCreatePull, s.createPull))
	mux.HandleFunc("POST "+repo+"/pulls/{number}/reviews", s.handle(OpCreateReview, s.createReview))
	mux.HandleFunc("GET "+repo+"/git/ref/{ref...}", s.handle(OpGetRef, s.getRef))
	mux.HandleFunc("POST "+repo+"/git/refs", s.handle(OpCreateRef, s.createRef))
	mux.HandleFunc("PATCH "+repo+"/git/refs/{ref...}", s.handle(OpUpdateRef, s.updateRef))
	mux.HandleFunc("GET "+repo+"/git/commits/{sha}", s.handle(OpGetCommit, s.getCommit))
	mux.HandleFunc("POST "+repo+"/git/commits", s.handle(OpCreateCommit, s.createCommit))
	mux.HandleFunc("POST "+repo+"/git/blobs", s.handle(OpCreateBlob, s.createBlob))
	mux.HandleFunc("POST "+repo+"/git/trees", s.handle(OpCreateTree, s.createTree))
	mux.HandleFunc("GET "+repo+"/contents/{path...}", s.handle(OpGetContents, s.getContents))
	mux.HandleFunc("PUT "+repo+"/contents/{path...}", s.handle(OpPutContents, s.putContents))
	mux.HandleFunc("GET "+repo+"/compare/{basehead...}", s.handle(OpCompare, s.compare))
	mux.HandleFunc("POST "+repo+"/issues/{number}/labels", s.handle(OpAddLabels, s.addLabels))
	mux.HandleFunc("DELETE "+repo+"/issues/{number}/labels/{name}", s.handle(OpRemoveLabel, s.removeLabel))
	mux.HandleFunc("POST "+repo+"/labels", s.handle(OpCreateLabel, s.createLabel))
	mux.HandleFunc("POST /graphql", s.handle(OpGraphQL, s.graphql))
	mux.HandleFunc("GET /raw/{sha}/{path...}", s.handle(OpRaw, s.raw))

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the REST API root.
func (s *Server) URL() string { return s.srv.URL + "/" }

// GraphQLURL returns the GraphQL endpoint.
func (s *Server) GraphQLURL() string { return s.srv.URL + "/graphql" }

// Fail makes every subsequent request for op answer with status and message.
func (s *Server) Fail(op string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = failure{status: status, message: message}
}

// Before registers fn to run before each request for op is handled. It runs
// without the server lock held, so it may call other Server methods.
func (s *Server) Before(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = fn
}

// Requests returns every request received so far, in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Ops returns the operation names of every request received so far.
func (s *Server) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		ops = append(ops, r.Op)
	}
	return ops
}

// Count returns how many requests were received for op.
func (s *Server) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Op == op {
			n++
		}
	}
	return n
}

// Commit writes files on top of the branch's current tree (or an empty tree
// for a new branch), advances the branch and returns the new commit sha.
func (s *Server) Commit(branch, message string, files map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := map[string]string{}
	var parents []string
	if head, ok := s.refs[branch]; ok {
		maps.Copy(entries, s.trees[s.commits[head].tree])
		parents = []string{head}
	}
	for path, content := range files {
		entries[path] = s.putBlob([]byte(content))
	}
	sha := s.putCommit(message, s.putTree(entries), parents)
	s.refs[branch] = sha
	return sha
}

// Branch returns the head of a branch.
func (s *Server) Branch(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sha, ok := s.refs[name]
	return sha, ok
}

// File returns the content of path at a branch or commit.
func (s *Server) File(ref, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.resolve(ref)
	if !ok {
		return "", false
	}
	blob, ok := s.trees[c.tree][path]
	if !ok {
		return "", false
	}
	return string(s.blobs[blob]), true
}

// Paths returns the sorted file paths in the tree of a branch or commit.
func (s *Server) Paths(ref string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.resolve(ref)
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(s.trees[c.tree]))
}

// Parents returns the parents of a commit.
func (s *Server) Parents(sha string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.commits[sha]; ok {
		return slices.Clone(c.parents)
	}
	return nil
}

// CommitCount returns the number of commit objects stored, reachable or not.
func (s *Server) CommitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commits)
}

// OpenPullRequest seeds an open pull request and returns its number.
func (s *Server) OpenPullRequest(title, head, base string, labels ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openPull(title, head, base, labels)
}

// PullRequests returns a snapshot of every pull request.
func (s *Server) PullRequests() []PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PullRequest, 0, len(s.pulls))
	for _, p := range s.pulls {
		cp := *p
		cp.Labels = slices.Clone(p.Labels)
		cp.Reviews = slices.Clone(p.Reviews)
		out = append(out, cp)
	}
	return out
}

// AddRepoLabel seeds a repository label.
func (s *Server) AddRepoLabel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[name] = true
}

// RepoLabels returns the sorted repository labels.
func (s *Server) RepoLabels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.labels))
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, body []byte)

func (s *Server) handle(op string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Op:            op,
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		hook := s.hooks[op]
		s.mu.Unlock()

		if hook != nil {
			hook()
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if f, ok := s.failures[op]; ok {
			writeError(w, f.status, f.message)
			return
		}
		if owner := r.PathValue("owner"); owner != "" && (owner != s.Owner || r.PathValue("repo") != s.Repo) {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		fn(w, r, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	})
}

func hashOf(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) putBlob(data []byte) string {
	sha := plumbing.ComputeHash(plumbing.BlobObject, data).String()
	s.blobs[sha] = bytes.Clone(data)
	return sha
}

func (s *Server) putTree(entries map[string]string) string {
	parts := make([]string, 0, len(entries))
	for _, p := range slices.Sorted(maps.Keys(entries)) {
		parts = append(parts, p+"="+entries[p])
	}
	sha := hashOf(append([]string{"tree"}, parts...)...)
	s.trees[sha] = maps.Clone(entries)
	return sha
}

func (s *Server) putCommit(message, tree string, parents []string) string {
	s.seq++
	sha := hashOf("commit", tree, strings.Join(parents, ","), message, fmt.Sprint(s.seq))
	s.commits[sha] = &commit{sha: sha, tree: tree, message: message, parents: slices.Clone(parents)}
	return sha
}

// resolve maps a branch name or commit sha to a commit.
func (s *Server) resolve(ref string) (*commit, bool) {
	if sha, ok := s.refs[ref]; ok {
		return s.commits[sha], true
	}
	c, ok := s.commits[ref]
	return c, ok
}

// ancestors returns every commit reachable from sha, including sha.
func (s *Server) ancestors(sha string) map[string]bool {
	seen := map[string]bool{}
	queue := []string{sha}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if c, ok := s.commits[cur]; ok {
			queue = append(queue, c.parents...)
		}
	}
	return seen
}

func (s *Server) mergeBase(a, b string) (string, bool) {
	inA := s.ancestors(a)
	seen := map[string]bool{}
	queue := []string{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if inA[cur] {
			return cur, true
		}
		if c, ok := s.commits[cur]; ok {
			queue = append(queue, c.parents...)
		}
	}
	return "", false
}

func (s *Server) openPull(title, head, base string, labels []string) int {
	number := len(s.pulls) + 1
	s.pulls = append(s.pulls, &PullRequest{
		Number: number,
		Title:  title,
		Head:   head,
		Base:   base,
		State:  "open",
		Labels: slices.Clone(labels),
	})
	for _, l := range labels {
		s.labels[l] = true
	}
	return number
}

func (s *Server) pull(number string) (*PullRequest, bool) {
	for _, p := range s.pulls {
		if fmt.Sprint(p.Number) == number {
			return p, true
		}
	}
	return nil, false
}

func (s *Server) pullJSON(p *PullRequest) map[string]any {
	labels := make([]map[string]any, 0, len(p.Labels))
	for _, l := range p.Labels {
		labels = append(labels, map[string]any{"name": l})
	}
	return map[string]any{
		"number":   p.Number,
		"title":    p.Title,
		"state":    p.State,
		"html_url": fmt.Sprintf("%s/%s/%s/pull/%d", s.srv.URL, s.Owner, s.Repo, p.Number),
		"head":     map[string]any{"ref": p.Head, "label": s.Owner + ":" + p.Head, "sha": s.refs[p.Head]},
		"base":     map[string]any{"ref": p.Base, "label": s.Owner + ":" + p.Base},
		"labels":   labels,
	}
}

func labelsJSON(names []string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]any{"name": n})
	}
	return out
}

func (s *Server) listPulls(w http.ResponseWriter, r *http.Request, _ []byte) {
	q := r.URL.Query()
	state := q.Get("state")
	if state == "" {
		state = "open"
	}
	head := q.Get("head")
	if owner, branch, ok := strings.Cut(head, ":"); ok {
		if owner != s.Owner {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		head = branch
	}
	base := q.Get("base")

	var matched []*PullRequest
	for _, p := range s.pulls {
		switch {
		case state != "all" && p.State != state:
		case head != "" && p.Head != head:
		case base != "" && p.Base != base:
		default:
			matched = append(matched, p)
		}
	}

	page, perPage := 1, 30
	fmt.Sscan(q.Get("page"), &page)
	fmt.Sscan(q.Get("per_page"), &perPage)
	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))

	out := make([]any, 0, end-start)
	for _, p := range matched[start:end] {
		out = append(out, s.pullJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createPull(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req struct {
		Title string `json:"title"`
		Head  string `json:"head"`
		Base  string `json:"base"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	headSHA, ok := s.refs[req.Head]
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Validation Failed: head does not exist")
		return
	}
	baseSHA, ok := s.refs[req.Base]
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Validation Failed: base does not exist")
		return
	}
	if headSHA == baseSHA {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("No commits between %s and %s", req.Base, req.Head))
		return
	}
	for _, p := range s.pulls {
		if p.State == "open" && p.Head == req.Head && p.Base == req.Base {
			writeError(w, http.StatusUnprocessableEntity, "A pull request already exists")
			return
		}
	}
	number := s.openPull(req.Title, req.Head, req.Base, nil)
	p, _ := s.pull(fmt.Sprint(number))
	writeJSON(w, http.StatusCreated, s.pullJSON(p))
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request, body []byte) {
	p, ok := s.pull(r.PathValue("number"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	var req struct {
		Body  string `json:"body"`
		Event string `json:"event"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	p.Reviews = append(p.Reviews, Review{Event: req.Event, Body: req.Body})
	state := "COMMENTED"
	if req.Event == "APPROVE" {
		state = "APPROVED"
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": len(p.Reviews), "state": state, "body": req.Body})
}

func (s *Server) getRef(w http.ResponseWriter, r *http.Request, _ []byte) {
	branch, ok := strings.CutPrefix(r.PathValue("ref"), "heads/")
	sha, exists := s.refs[branch]
	if !ok || !exists {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"sha": sha, "type": "commit"},
	})
}

func (s *Server) createRef(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	branch, ok := strings.CutPrefix(req.Ref, "refs/heads/")
	if !ok || branch == "" {
		writeError(w, http.StatusUnprocessableEntity, "Reference name is not valid")
		return
	}
	if _, exists := s.refs[branch]; exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	}
	if _, exists := s.commits[req.SHA]; !exists {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	s.refs[branch] = req.SHA
	writeJSON(w, http.StatusCreated, map[string]any{
		"ref":    req.Ref,
		"object": map[string]any{"sha": req.SHA, "type": "commit"},
	})
}

func (s *Server) updateRef(w http.ResponseWriter, r *http.Request, body []byte) {
	branch, _ := strings.CutPrefix(r.PathValue("ref"), "heads/")
	current, exists := s.refs[branch]
	if !exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference does not exist")
		return
	}
	var req struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	if _, ok := s.commits[req.SHA]; !ok {
		writeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	if !req.Force && !s.ancestors(req.SHA)[current] {
		writeError(w, http.StatusUnprocessableEntity, "Update is not a fast forward")
		return
	}
	s.refs[branch] = req.SHA
	writeJSON(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"sha": req.SHA, "type": "commit"},
	})
}

func (s *Server) getCommit(w http.ResponseWriter, r *http.Request, _ []byte) {
	c, ok := s.commits[r.PathValue("sha")]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	parents := make([]map[string]any, 0, len(c.parents))
	for _, p := range c.parents {
		parents = append(parents, map[string]any{"sha": p})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sha":     c.sha,
		"message": c.message,
		"tree":    map[string]any{"sha": c.tree},
		"parents": parents,
	})
}

func (s *Server) createCommit(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	if _, ok := s.trees[req.Tree]; !ok {
		writeError(w, http.StatusUnprocessableEntity, "Tree SHA does not exist")
		return
	}
	for _, p := range req.Parents {
		if _, ok := s.commits[p]; !ok {
			writeError(w, http.StatusUnprocessableEntity, "Parent SHA does not exist or is not a commit object")
			return
		}
	}
	sha := s.putCommit(req.Message, req.Tree, req.Parents)
	writeJSON(w, http.StatusCreated, map[string]any{
		"sha":     sha,
		"message": req.Message,
		"tree":    map[string]any{"sha": req.Tree},
	})
}

func (s *Server) createBlob(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	data := []byte(req.Content)
	switch req.Encoding {
	case "", "utf-8":
	case "base64":
		decoded, err := decodeBase64(req.Content)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
			return
		}
		data = decoded
	default:
		writeError(w, http.StatusUnprocessableEntity, "encoding is not supported")
		return
	}
	sha := s.putBlob(data)
	writeJSON(w, http.StatusCreated, map[string]any{"sha": sha, "url": s.srv.URL + "/blobs/" + sha})
}

func (s *Server) createTree(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req struct {
		BaseTree string `json:"base_tree"`
		Tree     []struct {
			Path string `json:"path"`
			Mode string `json:"mode"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	entries := map[string]string{}
	if req.BaseTree != "" {
		base, ok := s.trees[req.BaseTree]
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "base_tree is not a valid tree")
			return
		}
		maps.Copy(entries, base)
	}
	for _, e := range req.Tree {
		if e.Mode != "100644" || e.Type != "blob" {
			writeError(w, http.StatusUnprocessableEntity, "tree entry must be a regular file blob")
			return
		}
		if _, ok := s.blobs[e.SHA]; !ok {
			writeError(w, http.StatusUnprocessableEntity, "tree.sha "+e.SHA+" is not a valid blob")
			return
		}
		entries[e.Path] = e.SHA
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sha": s.putTree(entries)})
}

func (s *Server) contentJSON(path, blob string) map[string]any {
	data := s.blobs[blob]
	return map[string]any{
		"type":         "file",
		"name":         path[strings.LastIndex(path, "/")+1:],
		"path":         path,
		"sha":          blob,
		"size":         len(data),
		"encoding":     "base64",
		"content":      encodeBase64(data),
		"download_url": fmt.Sprintf("%s/raw/%s/%s", s.srv.URL, blob, path),
	}
}

func (s *Server) getContents(w http.ResponseWriter, r *http.Request, _ []byte) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		ref = "main"
	}
	c, ok := s.resolve(ref)
	if !ok {
		writeError(w, http.StatusNotFound, "No commit found for the ref "+ref)
		return
	}
	path := r.PathValue("path")
	blob, ok := s.trees[c.tree][path]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, s.contentJSON(path, blob))
}

func (s *Server) putContents(w http.ResponseWriter, r *http.Request, body []byte) {
	var req struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}
	head, ok := s.refs[req.Branch]
	if !ok {
		writeError(w, http.StatusNotFound, "Branch "+req.Branch+" not found")
		return
	}
	data, err := decodeBase64(req.Content)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	path := r.PathValue("path")
	entries := maps.Clone(s.trees[s.commits[head].tree])
	if existing, ok := entries[path]; ok {
		switch req.SHA {
		case "":
			writeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
			return
		case existing:
		default:
			writeError(w, http.StatusConflict, path+" does not match "+req.SHA)
			return
		}
	}

	blob := s.putBlob(data)
	entries[path] = blob
	sha := s.putCommit(req.Message, s.putTree(entries), []string{head})
	s.refs[req.Branch] = sha
	writeJSON(w, http.StatusOK, map[string]any{
		"content": s.contentJSON(path, blob),
		"commit":  map[string]any{"sha": sha, "message": req.Message},
	})
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request, _ []byte) {
	base, head, ok := strings.Cut(r.PathValue("basehead"), "...")
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	b, okb := s.resolve(base)
	h, okh := s.resolve(head)
	if !okb || !okh {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	mb, ok := s.mergeBase(b.sha, h.sha)
	if !ok {
		writeError(w, http.StatusNotFound, "No common ancestor between "+base+" and "+head)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "diverged",
		"base_commit":       map[string]any{"sha": b.sha},
		"merge_base_commit": map[string]any{"sha": mb},
	})
}

func (s *Server) addLabels(w http.ResponseWriter, r *http.Request, body []byte) {
	p, ok := s.pull(r.PathValue("number"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		var wrapped struct {
			Labels []string `json:"labels"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, "Problems parsing JSON")
			return
		}
		names = wrapped.Labels
	}
	for _, n := range names {
		s.labels[n] = true
		if !slices.Contains(p.Labels, n) {
			p.Labels = append(p.Labels, n)
		}
	}
	writeJSON(w, http.StatusOK, labelsJSON(p.Labels))
}

func (s *Server) removeLabel(w http.ResponseWriter, r *http.Request, _ []byte) {
	p, ok := s.pull(r.PathValue("number"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	name := r.PathValue("name")
	i := slices.Index(p.Labels, name)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Label does not exist")
		return
	}
	p.Labels = slices.Delete(p.Labels, i, i+1)
	writeJSON(w, http.StatusOK, labelsJSON(p.Labels))
}

func (s *Server) createLabel(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req struct {
		Name        string `json:"name"`
		Color       string `json:"color"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	if s.labels[req.Name] {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation Failed",
			"errors":  []map[string]any{{"resource": "Label", "code": "already_exists", "field": "name"}},
		})
		return
	}
	s.labels[req.Name] = true
	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name, "color": req.Color, "description": req.Description})
}

func (s *Server) graphql(w http.ResponseWriter, _ *http.Request, body []byte) {
	var req struct {
		Variables struct {
			HeadRef string `json:"headRef"`
			BaseRef string `json:"baseRef"`
		} `json:"variables"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	nodes := []any{}
	for _, p := range s.pulls {
		if p.State != "open" || p.Head != req.Variables.HeadRef || p.Base != req.Variables.BaseRef {
			continue
		}
		approvals := 0
		for _, rv := range p.Reviews {
			if rv.Event == "APPROVE" {
				approvals++
			}
		}
		decision := "REVIEW_REQUIRED"
		if approvals > 0 {
			decision = "APPROVED"
		}
		labelNodes := make([]any, 0, len(p.Labels))
		for _, l := range p.Labels {
			labelNodes = append(labelNodes, map[string]any{"name": l})
		}
		nodes = append(nodes, map[string]any{
			"number":         p.Number,
			"title":          p.Title,
			"url":            s.pullJSON(p)["html_url"],
			"reviewDecision": decision,
			"labels":         map[string]any{"nodes": labelNodes},
			"reviews":        map[string]any{"totalCount": approvals},
		})
		break
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"repository": map[string]any{
				"pullRequests": map[string]any{"nodes": nodes},
			},
		},
	})
}

func (s *Server) raw(w http.ResponseWriter, r *http.Request, _ []byte) {
	data, ok := s.blobs[r.PathValue("sha")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// decodeBase64 accepts the line-wrapped form the contents API emits.
func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(s, "\n", ""))
}
