package handler

import (
	"net/http"

	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/queue"
	"github.com/openterrain/tilegate/pkg/storage"
)

// HealthCheckHandler reports 200 when every storage and the invalidation
// queue are reachable. A nil queue is not checked.
func HealthCheckHandler(storages []storage.Storage, q queue.Queue, queueID string, logger log.JsonLogger) http.Handler {

	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		healthy := true

		for _, s := range storages {
			storageErr := s.HealthCheck()

			if storageErr != nil {
				logger.Error(log.LogCategory_StorageError, "Healthcheck on storage %T failed: %s", s, storageErr.Error())
				healthy = false
				break
			}
		}

		if healthy && q != nil {
			if queueErr := q.HealthCheck(req.Context(), queueID); queueErr != nil {
				logger.Error(log.LogCategory_QueueError, "Healthcheck on queue %s failed: %s", queueID, queueErr.Error())
				healthy = false
			}
		}

		if healthy {
			rw.WriteHeader(http.StatusOK)
		} else {
			rw.WriteHeader(http.StatusInternalServerError)
		}
	})
}
