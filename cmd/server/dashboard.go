// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main contains the API route definitions for the server. This file specifically
// defines the dashboard statistics endpoint.
//
// Functions:
//   - Dashboard: Sets up a route group for statistics-related endpoints. The `/stats`
//     endpoint aggregates run counts, success rates, and quality averages across
//     every report the pipeline has written.
package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Dashboard configures the API routes for the statistics feature.
// It creates a new route group "/stats" nested under the main API router group.
//
// Inputs:
//   - r: A *gin.RouterGroup to which the new "/stats" route group will be added.
//
// Outputs:
//   - This function does not return any value. It modifies the provided *gin.RouterGroup
//     by adding a new route handler.
//
// This function defines the following endpoint:
//   - GET /stats: Returns aggregate statistics over all caption runs: total runs,
//     successful runs, the mean engagement score, and the mean attempt count.
func Dashboard(r *gin.RouterGroup) {
	// Create a new router group for any statistics-related endpoints, prefixed with "/stats".
	stats := r.Group("/stats")
	{
		// Register a handler for a GET request to the "/stats" endpoint.
		stats.GET("", func(c *gin.Context) {
			// Aggregate run statistics from the report table.
			out, err := state.reportService.Stats(c)
			if err != nil {
				log.Printf("Error computing report stats: %v\n", err)
				c.Status(http.StatusInternalServerError)
				return
			}
			// Return the aggregate statistics as JSON.
			c.JSON(http.StatusOK, out)
		})
	}
}
