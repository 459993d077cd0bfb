package config

// Default returns the built-in layer catalogue.
func Default() *File {
	f := &File{
		Rasters: []Raster{
			{Name: "Incidents Heatmap", Root: "Incidents_Heatmap", Composite: true, Weight: 1, Coverage: "Incidents Heatmap"},
			{Name: "Population Density", Root: "Pop_Density", Composite: true, Weight: 1, Coverage: "Population Density"},
			{Name: "Fire Hydrants", Root: "Fire_Hydrants", Composite: true, Weight: 1},
			{Name: "Road Mobility", Root: "Road_Mobility", Composite: true, Weight: 1},
			{Name: "Number of Trucks Dispatched to Incidents", Root: "Trucks", Composite: true, Weight: 1},
			{Name: "Incidents Response Time", Root: "Response_Time", Composite: true, Weight: 1, Coverage: "Incidents Response Time"},
			{Name: "Land Use Risk", Root: "Land_Use", Composite: true, Weight: 1},
			{Name: "CRITIC Composite", Root: "CRITIC", Coverage: "CRITIC"},
			{Name: "Random Forest Composite", Root: "RF", Coverage: "RF"},
			{Name: "XGBoost Composite", Root: "XGB", Coverage: "XGB"},
		},
	}
	f.applyDefaults()
	return f
}
