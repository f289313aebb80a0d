// Package config загружает конфигурацию foundry-server.
//
// Порядок: значения по умолчанию, затем YAML-файл, затем переменные
// окружения (FOUNDRY_HTTP_ADDR, DB_URL, RABBITMQ_URL, FOUNDRY_SQLITE_PATH,
// FOUNDRY_QUALITY_THRESHOLD).
//
//	http_addr: ":8080"
//	workers:
//	  - id: gpu-1
//	    capabilities: [render, gpu]
//	    max_concurrent_jobs: 2
//	pipeline:
//	  min_stage_delay: 1s
//	  max_stage_delay: 3s
//	  quality_threshold: 0.8
//	  webhooks:
//	    PROCESS: http://render:9000/process
//	archive:
//	  sqlite_path: /var/lib/foundry/archive.db
//	schedules:
//	  - name: nightly
//	    cron: "0 3 * * *"
//	    job:
//	      stages: [INGEST, PROCESS, QUALITY_ASSURANCE]
package config
