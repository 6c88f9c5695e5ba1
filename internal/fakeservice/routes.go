package fakeservice

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"mime"
	nethttp "net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/doclatex/doclatex/internal/constants"
)

var builtinTemplates = []struct {
	id, name string
}{
	{constants.DefaultTemplateID, "IEEE Conference"},
	{constants.OneColumnTemplateID, "One Column"},
}

func (s *Service) registerRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/chuyen-doi", s.handleConvert)
		api.GET("/tai-ve-zip/:id", s.handleDownload)

		api.GET("/templates", s.handleListTemplates)
		api.POST("/templates/upload", s.handleUploadTemplate)
		api.DELETE("/templates/:id", s.handleDeleteTemplate)
	}

	r.GET("/health", s.handleHealth)
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(nethttp.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Service) handleListTemplates(c *gin.Context) {
	templates := make([]gin.H, 0, len(builtinTemplates))
	for _, b := range builtinTemplates {
		templates = append(templates, gin.H{
			"id":        b.id,
			"ten":       b.name,
			"loai":      "mac_dinh",
			"kichThuoc": len(renderTemplate(b.id)),
		})
	}

	s.mu.Lock()
	stems := make([]string, 0, len(s.templates))
	for stem := range s.templates {
		stems = append(stems, stem)
	}
	sort.Strings(stems)
	for _, stem := range stems {
		templates = append(templates, customTemplateJSON(stem, len(s.templates[stem])))
	}
	s.mu.Unlock()

	c.JSON(nethttp.StatusOK, gin.H{"templates": templates})
}

func (s *Service) handleUploadTemplate(c *gin.Context) {
	name, content, ok := readFormFile(c)
	if !ok {
		return
	}
	if !strings.HasSuffix(strings.ToLower(name), ".tex") {
		respondDetail(c, nethttp.StatusBadRequest, "only .tex files are accepted")
		return
	}
	if len(content) > constants.MaxTemplateSize {
		respondDetail(c, nethttp.StatusBadRequest, "template file too large (max 2MB)")
		return
	}
	text := string(content)
	if !strings.Contains(text, `\documentclass`) && !strings.Contains(text, `\begin{document}`) {
		respondDetail(c, nethttp.StatusBadRequest, `not a valid LaTeX template (missing \documentclass or \begin{document})`)
		return
	}

	stem := safeName(strings.TrimSuffix(name, filepath.Ext(name)))
	s.mu.Lock()
	s.templates[stem] = content
	s.mu.Unlock()

	s.logger.Info().Str("template", stem).Int("bytes", len(content)).Msg("template uploaded")
	c.JSON(nethttp.StatusOK, gin.H{
		"thanhCong": true,
		"template":  customTemplateJSON(stem, len(content)),
		"message":   "uploaded template: " + stem,
	})
}

func (s *Service) handleDeleteTemplate(c *gin.Context) {
	id := c.Param("id")
	if !strings.HasPrefix(id, constants.CustomTemplatePrefix) {
		respondDetail(c, nethttp.StatusBadRequest, "built-in templates cannot be deleted")
		return
	}
	stem := strings.TrimPrefix(id, constants.CustomTemplatePrefix)

	s.mu.Lock()
	_, exists := s.templates[stem]
	delete(s.templates, stem)
	s.mu.Unlock()

	if !exists {
		respondDetail(c, nethttp.StatusNotFound, "template does not exist")
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"thanhCong": true, "message": "deleted template: " + stem})
}

func (s *Service) handleConvert(c *gin.Context) {
	name, content, ok := readFormFile(c)
	if !ok {
		return
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != constants.ExtDocx && ext != constants.ExtDocm {
		respondDetail(c, nethttp.StatusBadRequest, "only .docx and .docm files are accepted")
		return
	}
	if len(content) > constants.MaxDocumentSize {
		respondDetail(c, nethttp.StatusBadRequest, "file too large, maximum size is 10MB")
		return
	}

	templateID := c.DefaultQuery("template_type", constants.OneColumnTemplateID)
	if templateID == "twocolumn" {
		templateID = constants.OneColumnTemplateID
	}
	preamble, found := s.lookupTemplate(templateID)
	if !found {
		respondDetail(c, nethttp.StatusInternalServerError, "template does not exist: "+templateID)
		return
	}

	jobID := uuid.NewString()
	started := s.now()
	s.logger.Info().Str("job_id", jobID).Str("file", name).Str("template", templateID).Msg("conversion requested")

	if s.opts.Delay > 0 {
		select {
		case <-time.After(s.opts.Delay):
		case <-c.Request.Context().Done():
			s.logger.Debug().Str("job_id", jobID).Msg("client went away")
			return
		}
	}
	if s.opts.FailConversions {
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": "conversion failed: the Word file is invalid or cannot be processed"})
		return
	}

	stem := fmt.Sprintf("%s_%s", safeName(strings.TrimSuffix(name, filepath.Ext(name))), started.Format("20060102_150405"))
	texName := stem + ".tex"
	zipName := stem + ".zip"
	tex := renderDocument(preamble, name)

	archive, err := buildArchive(texName, tex)
	if err != nil {
		c.JSON(nethttp.StatusInternalServerError, gin.H{"error": "conversion failed: " + err.Error()})
		return
	}

	s.mu.Lock()
	s.jobs[jobID] = job{archiveName: zipName, archive: archive}
	s.mu.Unlock()

	images, formulas := countMetadata(tex)
	c.JSON(nethttp.StatusOK, gin.H{
		"thanh_cong":     true,
		"tex_content":    tex,
		"job_id":         jobID,
		"ten_file_zip":   zipName,
		"ten_file_latex": texName,
		"metadata": gin.H{
			// No PDF is compiled, so the page count is unknown.
			"so_trang":             nil,
			"so_hinh_anh":          images,
			"so_cong_thuc":         formulas,
			"thoi_gian_xu_ly_giay": roundSeconds(s.now().Sub(started)),
		},
	})
}

func (s *Service) handleDownload(c *gin.Context) {
	s.mu.Lock()
	j, ok := s.jobs[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		respondDetail(c, nethttp.StatusNotFound, "job does not exist or has been cleaned up")
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": j.archiveName}))
	c.Data(nethttp.StatusOK, "application/zip", j.archive)
}

// lookupTemplate returns the preamble used for id.
func (s *Service) lookupTemplate(id string) (string, bool) {
	if stem, ok := strings.CutPrefix(id, constants.CustomTemplatePrefix); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		content, exists := s.templates[stem]
		return string(content), exists
	}
	for _, b := range builtinTemplates {
		if b.id == id {
			return renderTemplate(id), true
		}
	}
	// Unknown non-custom ids fall back to the one-column layout.
	return renderTemplate(constants.OneColumnTemplateID), true
}

func readFormFile(c *gin.Context) (string, []byte, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondDetail(c, nethttp.StatusUnprocessableEntity, "field 'file' is required")
		return "", nil, false
	}
	f, err := fh.Open()
	if err != nil {
		respondDetail(c, nethttp.StatusBadRequest, "cannot read uploaded file")
		return "", nil, false
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		respondDetail(c, nethttp.StatusBadRequest, "cannot read uploaded file")
		return "", nil, false
	}
	return fh.Filename, content, true
}

func respondDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}

func customTemplateJSON(stem string, size int) gin.H {
	return gin.H{
		"id":        constants.CustomTemplatePrefix + stem,
		"ten":       stem,
		"loai":      "tuy_chinh",
		"kichThuoc": size,
	}
}

// safeName keeps letters, digits, spaces, '-' and '_', replacing everything else.
func safeName(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func renderTemplate(id string) string {
	options := "a4paper,12pt"
	class := "article"
	if id == constants.DefaultTemplateID {
		options = "conference"
		class = "IEEEtran"
	}
	return fmt.Sprintf("\\documentclass[%s]{%s}\n\\usepackage{amsmath}\n\\usepackage{graphicx}\n", options, class)
}

func renderDocument(preamble, sourceName string) string {
	preamble = strings.TrimSpace(preamble)
	if i := strings.Index(preamble, `\begin{document}`); i >= 0 {
		preamble = strings.TrimSpace(preamble[:i])
	}
	title := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	return preamble + "\n\n" +
		"\\begin{document}\n" +
		"\\title{" + escapeLaTeX(title) + "}\n" +
		"\\maketitle\n\n" +
		"\\section{Introduction}\n" +
		"Converted from " + escapeLaTeX(sourceName) + ".\n\n" +
		"\\begin{equation}\n  E = mc^2\n\\end{equation}\n\n" +
		"Inline math \\(a^2 + b^2 = c^2\\).\n\n" +
		"\\end{document}\n"
}

var latexSpecial = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`, `%`, `\%`, `$`, `\$`, `#`, `\#`,
	`_`, `\_`, `{`, `\{`, `}`, `\}`,
	`~`, `\textasciitilde{}`, `^`, `\textasciicircum{}`,
)

func escapeLaTeX(s string) string {
	return latexSpecial.Replace(s)
}

var (
	includeGraphics = regexp.MustCompile(`\\includegraphics`)
	equationEnv     = regexp.MustCompile(`\\begin\{(equation\*?|align\*?|eqnarray\*?)\}`)
	displayBracket  = regexp.MustCompile(`\\\[`)
	inlineParen     = regexp.MustCompile(`\\\(`)
	dollarBlock     = regexp.MustCompile(`\$\$`)
)

// countMetadata counts images and formulas in generated LaTeX.
func countMetadata(tex string) (images, formulas int) {
	images = len(includeGraphics.FindAllStringIndex(tex, -1))
	formulas = len(equationEnv.FindAllStringIndex(tex, -1)) +
		len(displayBracket.FindAllStringIndex(tex, -1)) +
		len(inlineParen.FindAllStringIndex(tex, -1)) +
		len(dollarBlock.FindAllStringIndex(tex, -1))/2
	return images, formulas
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}

func buildArchive(texName, tex string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(texName)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, tex); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
