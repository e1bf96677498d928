package identity

// DemoDirectory returns the static development actor table. Real deployments
// replace this with their own token source.
func DemoDirectory() *Directory {
	return NewDirectory(map[string]Actor{
		"demo-doctor-token":     {ID: "usr-doc-1", Role: RoleDoctor, Name: "Dr. Sarah Chen", Email: "s.chen@carepoint.dev"},
		"demo-pharmacist-token": {ID: "usr-pha-1", Role: RolePharmacist, Name: "Mike Torres", Email: "m.torres@carepoint.dev"},
		"demo-cashier-token":    {ID: "usr-cas-1", Role: RoleCashier, Name: "Priya Nair", Email: "p.nair@carepoint.dev"},
	})
}
