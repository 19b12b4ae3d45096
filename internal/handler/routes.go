package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API on the v1 group
func RegisterRoutes(v1 *gin.RouterGroup, prefs *PreferencesHandler, items *ItemHandler) {
	v1.GET("/preferences", prefs.GetPreferences)
	v1.PUT("/preferences", prefs.UpdatePreferences)

	automation := v1.Group("/automation")
	{
		automation.GET("", prefs.GetAutomationSettings)
		automation.PUT("", prefs.UpdateAutomationSettings)
		automation.POST("/sweep", prefs.RunSweep)
	}

	itemRoutes := v1.Group("/items/:kind/:id")
	{
		itemRoutes.POST("/reconcile", items.ReconcileItem)
		itemRoutes.DELETE("/triggers", items.CancelItem)
	}

	v1.GET("/triggers", items.GetTriggers)
}
