package synth

import (
	"bytes"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"join": strings.Join,
}

var frontendDockerfile = template.Must(template.New("frontend").Funcs(funcs).Parse(`FROM node:20-alpine AS build
WORKDIR /app
COPY package*.json ./
RUN npm install
COPY . .
ENV {{ .APIEnv }}={{ .APIPrefix }}
RUN npm run build
{{- if .OutputDir }}
RUN mkdir -p /site && cp -r {{ .OutputDir }}/. /site/
{{- else }}
RUN mkdir -p /site && cp -r "$(dirname "$(find dist -name index.html | head -n 1)")"/. /site/
{{- end }}

FROM alpine:3.20
COPY --from=build /site /site
CMD ["sh", "-c", "rm -rf /export/* && cp -r /site/. /export/"]
`))

var nodeDockerfile = template.Must(template.New("node").Funcs(funcs).Parse(`FROM node:20-alpine
WORKDIR /app
COPY package*.json ./
RUN npm install --omit=dev
COPY . .
ENV PORT={{ .Port }}
EXPOSE {{ .Port }}
CMD ["node", "{{ .EntryFile }}"]
`))

var pythonDockerfile = template.Must(template.New("python").Funcs(funcs).Parse(`FROM python:3.12-slim
WORKDIR /app
{{- if .SystemPackages }}
RUN apt-get update \
    && apt-get install -y --no-install-recommends {{ join .SystemPackages " " }} \
    && rm -rf /var/lib/apt/lists/*
{{- end }}
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
ENV PORT={{ .Port }} PYTHONUNBUFFERED=1
EXPOSE {{ .Port }}
CMD ["python", "{{ .EntryFile }}"]
`))

var dataDockerfile = template.Must(template.New("data").Funcs(funcs).Parse(`FROM {{ .Image }}
{{- if .InitDir }}
COPY . {{ .InitDir }}/
{{- end }}
EXPOSE {{ .Port }}
`))

var nginxConf = template.Must(template.New("nginx").Funcs(funcs).Parse(`server {
    listen 80;
    server_name _;

    root /usr/share/nginx/html;
    index index.html;

    location {{ .APIPrefix }}/ {
        proxy_pass http://{{ .Upstream }}:{{ .Port }};
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }

    location / {
        try_files $uri $uri/ /index.html;
    }
}
`))

type frontendData struct {
	APIEnv    string
	APIPrefix string
	OutputDir string
}

type serviceData struct {
	Port           int
	EntryFile      string
	SystemPackages []string
}

type dataData struct {
	Image   string
	InitDir string
	Port    int
}

type nginxData struct {
	APIPrefix string
	Upstream  string
	Port      int
}

func render(tmpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
