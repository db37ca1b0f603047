package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"text/template"

	"github.com/openterrain/tilegate/pkg/log"
)

type fileHandler struct {
	tpl          *template.Template
	templateData map[string]interface{}
	logger       log.JsonLogger
}

func (f *fileHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	data := make(map[string]interface{}, len(f.templateData)+1)
	for k, v := range f.templateData {
		data[k] = v
	}
	data["buildid"] = request.URL.Query().Get("buildid")

	renderedTemplateBuffer := bytes.NewBuffer(nil)
	err := f.tpl.Execute(renderedTemplateBuffer, data)
	if err != nil {
		errMsg := fmt.Sprintf("couldn't render template %s for handler: %v", f.tpl.Name(), err)
		f.logger.Error(log.LogCategory_ConfigError, errMsg)
		http.Error(writer, errMsg, http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Write(renderedTemplateBuffer.Bytes())
}

// NewFileHandler parses the filename given as a text template and renders it with the given templateData.
// It returns an HTTP handler that serves the resulting rendered data to all requests.
func NewFileHandler(filename string, templateData map[string]interface{}, logger log.JsonLogger) (http.Handler, error) {
	tpl, err := template.ParseFiles(filename)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse template file %s: %w", filename, err)
	}

	return &fileHandler{
		tpl:          tpl,
		templateData: templateData,
		logger:       logger,
	}, nil
}
