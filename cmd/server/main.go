// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// *****************************************************************************************************//
// Package main is the entry point for the caption pipeline backend server.
//
// This application sets up and runs a web server using the Gin framework. It provides a REST API
// for submitting caption requests, uploading segment manifests, and reading the quality reports
// the pipeline produces. The server is instrumented with OpenTelemetry for logging, tracing,
// and metrics, providing observability into the application's performance.
//
// The main function initializes the application's configuration, sets up logging and telemetry,
// and initializes the application state, including clients for Google Cloud services. It defines
// API routes for listing reports, fetching a single report, generating signed URLs for archived
// report documents, and submitting new caption requests.
//
// The server also sets up and manages a background listener on the caption request topic, which
// triggers the caption pipeline (classification, generation, validation, quality analysis, and
// the retry loop) when a new request message arrives.
//
// Functions:
//   - main: The main entry point of the application. It sets up the server, configures routes,
//     initializes services, and handles graceful shutdown.
//   - ReportRouter: Sets up the API routes related to caption reports, such as listing recent
//     runs, retrieving a specific report, and generating signed URLs for archived reports.
//   - CaptionRouter: Configures the API endpoint that accepts a caption request and publishes
//     it to the request topic for asynchronous processing.
//   - ManifestUpload: Configures the API endpoint for handling multipart/form-data manifest
//     uploads, saving the uploaded JSON documents to a Google Cloud Storage bucket.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/clipforge/gcp-go-caption-pipeline/internal/core/model"
	"github.com/clipforge/gcp-go-caption-pipeline/internal/telemetry"
)

// main is the primary entry point for the application.
// It orchestrates the setup of logging, telemetry, configuration, cloud services,
// the web server, API routes, and the background listener. It also handles graceful
// shutdown of the server upon receiving an interrupt signal.
func main() {
	// Initialize structured logging for the application.
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	// Create a new context that can be cancelled. This is the root context for the application.
	ctx, cancel := context.WithCancel(context.Background())
	// Defer the cancel function to be called when main exits, ensuring all child contexts are cancelled.
	defer cancel()

	// Load application configuration from TOML files.
	config := GetConfig()

	// Initialize OpenTelemetry for distributed tracing and metrics.
	_, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	// Initialize the application's state, including all necessary service clients.
	InitState(ctx)
	slog.Info("Initialized State")

	// Set up the Gin web server with default middleware.
	r := gin.Default()

	// Add OpenTelemetry middleware to the Gin router to trace incoming requests.
	// This will automatically create spans for each request.
	r.Use(otelgin.Middleware("caption-pipeline-server"))

	// Configure Cross-Origin Resource Sharing (CORS) middleware.
	// Using cors.Default() provides a permissive configuration suitable for development,
	// allowing requests from any origin.
	r.Use(cors.Default())

	// Group routes under the "/api/v1" prefix.
	apiV1 := r.Group("/api/v1")
	{
		// Register the routes for reports, caption requests, manifest uploads,
		// and run statistics within the API group.
		ReportRouter(apiV1)
		CaptionRouter(apiV1)
		ManifestUpload(apiV1)
		Dashboard(apiV1)
	}

	// Configure the HTTP server with the address and handler.
	srv := &http.Server{
		Addr:         ":8080",
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	// Start the HTTP server in a separate goroutine so it doesn't block the main thread.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("filed to listen: ", "error", err)
		}
	}()
	slog.Info("Server Ready on port 8080")

	// Set up a channel to listen for OS interrupt signals (e.g., Ctrl+C).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	// Block until a signal is received on the quit channel.
	<-quit
	slog.Info("Shutdown Server ...")

	// Create a context with a timeout for the graceful shutdown.
	// This gives active requests 5 seconds to complete.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Attempt to gracefully shut down the server.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed:", "error", err)
	}

	log.Println("Server exiting")
}

// ReportRouter sets up the API routes for report-related actions.
//
// Inputs:
//   - r: A *gin.RouterGroup to which the report routes will be added. This allows
//     nesting routes under a common path prefix (e.g., "/api/v1").
//
// Outputs:
//   - This function does not return any values. It modifies the provided *gin.RouterGroup
//     by adding new route handlers.
//
// This function defines the following endpoints:
//   - GET /reports: Lists the most recent caption report rows, newest first.
//   - GET /reports/:id: Retrieves the full report document for a run by its correlation id.
//   - GET /reports/:id/archive: Generates a time-limited, signed URL for the archived report JSON.
func ReportRouter(r *gin.RouterGroup) {
	// Group all report-related routes under the "/reports" path.
	reports := r.Group("/reports")
	{
		// Handler for GET /reports?count=<n>
		reports.GET("", func(c *gin.Context) {
			// Get the 'count' parameter, defaulting to 20 if not provided or invalid.
			count, err := strconv.Atoi(c.DefaultQuery("count", "20"))
			if err != nil {
				count = 20
			}
			// Call the report service to list the most recent rows.
			rows, err := state.reportService.List(c, count)
			if err != nil {
				log.Printf("Error listing reports: %v\n", err)
				c.Status(http.StatusInternalServerError)
				return
			}
			// Return the rows as a JSON array.
			c.JSON(http.StatusOK, rows)
		})

		// Handler for GET /reports/:id
		reports.GET("/:id", func(c *gin.Context) {
			// Get the correlation id from the URL path.
			id := c.Param("id")
			// Fetch the full report document for the run.
			out, err := state.reportService.GetReport(c, id)
			if err != nil {
				// If not found, return a 404 status.
				c.Status(http.StatusNotFound)
				return
			}
			// Return the report document as JSON.
			c.JSON(http.StatusOK, out)
		})

		// Handler for GET /reports/:id/archive
		// This endpoint provides a secure, time-limited URL for clients to download
		// the archived report document directly from Cloud Storage.
		reports.GET("/:id/archive", func(c *gin.Context) {
			id := c.Param("id")
			// Confirm the run exists before signing a URL for its archive object.
			if _, err := state.reportService.Get(c, id); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
				return
			}

			// Generate a signed URL valid for 15 minutes for the archived report.
			signedURL, err := state.reportService.GenerateArchiveURL(c, id, 15*time.Minute)
			if err != nil {
				log.Printf("Error generating signed URL: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate archive URL"})
				return
			}
			// Return the signed URL in the JSON response.
			c.JSON(http.StatusOK, gin.H{"url": signedURL})
		})
	}
}

// CaptionRouter sets up the route for submitting caption requests.
//
// Inputs:
//   - r: A *gin.RouterGroup to which the caption route will be added.
//
// Outputs:
//   - This function does not return any values. It registers a POST route on the
//     provided router group.
//
// This function configures a POST endpoint at "/captions" that accepts a JSON
// caption request. The request names a segment manifest in Cloud Storage; the
// handler assigns a correlation id when the caller did not provide one, publishes
// the request to the Pub/Sub request topic, and returns 202 Accepted. The
// pipeline itself runs asynchronously on the listener attached to that topic.
func CaptionRouter(r *gin.RouterGroup) {
	// Group the submit route under "/captions".
	captions := r.Group("/captions")
	{
		// Handler for POST /captions
		captions.POST("", func(c *gin.Context) {
			// Bind the JSON body into a caption request.
			var req model.CaptionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			// The manifest object name is the one field the caller must supply.
			if len(req.ManifestObject) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "manifest_object is required"})
				return
			}
			// Default the bucket to the configured manifest bucket.
			if len(req.ManifestBucket) == 0 {
				req.ManifestBucket = state.config.Storage.ManifestBucket
			}
			// Assign a correlation id so the caller can poll for the report.
			if len(req.CorrelationId) == 0 {
				req.CorrelationId = uuid.New().String()
			}
			// Serialize the request for the topic.
			payload, err := json.Marshal(&req)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not serialize request"})
				return
			}
			// Publish the request and wait for the server-assigned message id.
			result := state.requestTopic.Publish(c, &pubsub.Message{
				Data:       payload,
				Attributes: map[string]string{"correlation_id": req.CorrelationId},
			})
			messageId, err := result.Get(c)
			if err != nil {
				log.Printf("Error publishing caption request: %v\n", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not publish request"})
				return
			}
			// Respond with the correlation id the caller should use to fetch the report.
			c.JSON(http.StatusAccepted, gin.H{
				"correlation_id": req.CorrelationId,
				"message_id":     messageId,
			})
		})
	}
}

// ManifestUpload sets up the route for handling segment manifest uploads.
//
// Inputs:
//   - r: A *gin.RouterGroup to which the manifest upload route will be added.
//
// Outputs:
//   - This function does not return any values. It registers a POST route on the
//     provided router group.
//
// This function configures a POST endpoint at "/uploads" that accepts multipart/form-data.
// It processes one or more files sent under the "files" form field, saves them
// temporarily to the local disk, verifies each one is a JSON document rather than
// a stray media file, and then uploads them to the configured manifest bucket
// before deleting the local temporary file.
func ManifestUpload(r *gin.RouterGroup) {
	// Group the upload route under "/uploads".
	upload := r.Group("/uploads")
	{
		// Handler for POST /uploads
		upload.POST("", func(c *gin.Context) {
			// Parse the multipart form from the request.
			form, err := c.MultipartForm()
			if err != nil {
				c.String(http.StatusBadRequest, "get form err: %s", err.Error())
				return
			}
			// Get all files associated with the "files" field.
			files := form.File["files"]
			// Get a handle to the configured GCS bucket for segment manifests.
			bucket := state.cloud.StorageClient.Bucket(state.config.Storage.ManifestBucket)

			// Loop through all the uploaded files.
			for _, file := range files {
				// Define a temporary local path to save the file.
				localPath := filepath.Join(os.TempDir(), file.Filename)
				// Save the uploaded file to the local temporary path.
				if err := c.SaveUploadedFile(file, localPath); err != nil {
					c.String(http.StatusBadRequest, "upload file err: %s", err.Error())
					return
				}

				// Read the file content from the local path.
				content, err := os.ReadFile(localPath)
				if err != nil {
					log.Println(err)
					c.Status(http.StatusInternalServerError)
					return
				}
				// Manifests are JSON text. A match against the magic-number
				// registry means someone uploaded a video or image by mistake.
				if kind, _ := filetype.Match(content); kind != filetype.Unknown {
					c.String(http.StatusBadRequest, "file %s looks like %s, expected a JSON segment manifest", file.Filename, kind.MIME.Value)
					return
				}
				if !json.Valid(content) {
					c.String(http.StatusBadRequest, "file %s is not valid JSON", file.Filename)
					return
				}
				// Get a writer for the new object in the GCS bucket.
				wc := bucket.Object(file.Filename).NewWriter(c)
				// Set the content type for the GCS object.
				wc.ContentType = "application/json"
				// Write the file content to the GCS object.
				if _, err = wc.Write(content); err != nil {
					c.String(http.StatusInternalServerError, "write file to bucket err: %s", err.Error())
					return
				}
				// Close the GCS writer to finalize the upload.
				if err := wc.Close(); err != nil {
					log.Printf("failed to close bucket handle: %v\n", err)
				}
				// Remove the temporary local file after successful upload.
				if err := os.Remove(localPath); err != nil {
					log.Printf("failed to remove file from server: %v\n", err)
				}
			}
			// Respond with a success message.
			c.String(http.StatusOK, "Uploaded successfully %d manifests.", len(files))
		})
	}
}
